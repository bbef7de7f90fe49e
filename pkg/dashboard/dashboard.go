// Package dashboard holds the banking dashboard's view components: the
// balance view with its transfer actions, the transfer dialog and the
// transaction list. Components read and mutate a ViewState; persisting
// it between requests is the caller's job.
package dashboard

import (
	"context"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Upstream is the part of the banking API the dashboard uses. It is
// already bound to the session's credential.
type Upstream interface {
	Balances(ctx context.Context) (bankapi.BalanceSnapshot, error)
	Transactions(ctx context.Context) ([]bankapi.Transaction, error)
	SubmitTransfer(ctx context.Context, kind bankapi.TransferKind, req bankapi.TransferRequest) error
}

// Options tunes a Dashboard.
type Options struct {
	// RefreshHistoryOnTransfer also reloads the transaction list after a
	// transfer. Off by default: only balances refresh.
	RefreshHistoryOnTransfer bool

	// Checkpoint persists state once a submit is marked pending and
	// before the upstream is called.
	Checkpoint func(ctx context.Context, state *ViewState) error

	// PendingTimeout is how long a pending submit blocks new ones. Zero
	// never expires.
	PendingTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *logging.Logger
}

// Dashboard wires the components together for one session's upstream.
type Dashboard struct {
	Balance *BalanceView
	Dialog  *TransferDialog
	History *TransactionList
	Events  *Events
}

// New builds the components over api.
func New(api Upstream, opts Options) *Dashboard {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Global()
	}
	logger = logger.Named("dashboard")

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	events := &Events{}
	d := &Dashboard{
		Balance: &BalanceView{api: api, logger: logger.Named("balances")},
		History: &TransactionList{api: api, logger: logger.Named("transactions")},
		Dialog: &TransferDialog{
			api:        api,
			events:     events,
			checkpoint: opts.Checkpoint,
			staleAfter: opts.PendingTimeout,
			now:        now,
			logger:     logger.Named("transfer"),
		},
		Events: events,
	}

	events.Subscribe(d.Balance.OnTransferSuccess)
	if opts.RefreshHistoryOnTransfer {
		events.Subscribe(d.History.OnTransferCompleted)
	}

	return d
}

// Activate loads balances and transactions the first time the view is
// shown. The two loads run concurrently and fail independently; their
// errors land in state. It reports whether anything was fetched.
func (d *Dashboard) Activate(ctx context.Context, state *ViewState) bool {
	if state.Active {
		return false
	}

	balances, history := *state, *state

	var g errgroup.Group
	g.Go(func() error {
		_ = d.Balance.LoadBalances(ctx, &balances)
		return nil
	})
	g.Go(func() error {
		_ = d.History.Load(ctx, &history)
		return nil
	})
	_ = g.Wait()

	state.Balances = balances.Balances
	state.BalancesLoaded = balances.BalancesLoaded
	state.BalancesError = balances.BalancesError
	state.Transactions = history.Transactions
	state.TransactionsLoaded = history.TransactionsLoaded
	state.TransactionsError = history.TransactionsError
	state.Active = true
	return true
}

// Reload is a full reload: the view deactivates and activates again.
func (d *Dashboard) Reload(ctx context.Context, state *ViewState) {
	Deactivate(state)
	d.Activate(ctx, state)
}

// Deactivate marks the view for a fresh activation on the next page
// view. Held data stays until then.
func Deactivate(state *ViewState) {
	state.Active = false
}

// OpenTransfer opens the dialog for kind. It fails with
// ErrSubmissionPending while a submit is outstanding.
func (d *Dashboard) OpenTransfer(state *ViewState, kind string) error {
	if d.Dialog.pending(state) {
		return ErrSubmissionPending
	}
	return d.Balance.OpenTransfer(state, kind)
}

// CancelTransfer closes the dialog without side effects. An outstanding
// submit cannot be cancelled.
func (d *Dashboard) CancelTransfer(state *ViewState) error {
	if d.Dialog.pending(state) {
		return ErrSubmissionPending
	}
	d.Balance.OnTransferCancelled(state)
	return nil
}

// SubmitTransfer records the form and submits it.
func (d *Dashboard) SubmitTransfer(ctx context.Context, state *ViewState, amount, otp string) error {
	if err := d.Dialog.SetFields(state, amount, otp); err != nil {
		return err
	}
	return d.Dialog.Submit(ctx, state)
}
