package dashboard

import (
	"time"

	"bank-dashboard/pkg/bankapi"
)

// ViewSlot is the session slot the view state is stored under.
const ViewSlot = "view"

// ViewState is everything the dashboard page shows for one session. It
// survives between requests in the session store.
type ViewState struct {
	Active bool `json:"active"`

	Balances       bankapi.BalanceSnapshot `json:"balances"`
	BalancesLoaded bool                    `json:"balancesLoaded"`
	BalancesError  string                  `json:"balancesError,omitempty"`

	Transactions       []bankapi.Transaction `json:"transactions"`
	TransactionsLoaded bool                  `json:"transactionsLoaded"`
	TransactionsError  string                `json:"transactionsError,omitempty"`

	Dialog DialogState `json:"dialog"`
}

// DialogState is the transfer dialog. The form fields only carry data
// while the dialog is open.
type DialogState struct {
	Open         bool                 `json:"open"`
	Kind         bankapi.TransferKind `json:"kind,omitempty"`
	Amount       string               `json:"amount"`
	OTP          string               `json:"otp"`
	Pending      bool                 `json:"pending"`
	PendingSince time.Time            `json:"pendingSince,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Title is the dialog heading, e.g. "Wire Transfer".
func (d DialogState) Title() string {
	return string(d.Kind) + " Transfer"
}

func (d *DialogState) reset() {
	*d = DialogState{}
}
