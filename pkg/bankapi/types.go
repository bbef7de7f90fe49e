package bankapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the account's balance summary as returned upstream.
type BalanceSnapshot struct {
	Transferable Amount `json:"transferable"`
	Savings      Amount `json:"savings"`
	SavingsHold  Amount `json:"savingsHold"`
	CreditLimit  Amount `json:"creditLimit"`
}

// Transaction is one history entry.
type Transaction struct {
	ID        string    `json:"txnId"`
	Type      string    `json:"type"`
	Amount    Amount    `json:"amount"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Amount is a money value that keeps the scale it was sent with, so
// "100.50" prints as 100.50 rather than 100.5.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) String() string {
	if exp := a.Exponent(); exp < 0 {
		return a.StringFixed(-exp)
	}
	return a.Decimal.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// TransferRequest is the body posted to a transfer endpoint. Both fields
// are free text and sent as entered.
type TransferRequest struct {
	Amount string `json:"amount"`
	OTP    string `json:"otp"`
}

// TransferKind selects the transfer endpoint.
type TransferKind string

const (
	Interbank TransferKind = "Interbank"
	Wire      TransferKind = "Wire"
)

// TransferKinds lists the kinds in display order.
var TransferKinds = []TransferKind{Interbank, Wire}

// ParseTransferKind accepts a kind name in any case.
func ParseTransferKind(s string) (TransferKind, error) {
	for _, k := range TransferKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Path returns the upstream path for the kind, e.g. "/tx/wire".
func (k TransferKind) Path() string {
	return "/tx/" + strings.ToLower(string(k))
}

func (k TransferKind) String() string {
	return string(k)
}

// Timestamp is a point in time decoded from an RFC 3339 string, a
// zone-less date-time, a date or epoch milliseconds. A zone-less
// date-time is wall-clock time in the viewer's zone; see InLocation.
// Values in any other shape decode as the zero Timestamp.
type Timestamp struct {
	time.Time

	// floating marks a date-time that carried no zone.
	floating bool
}

const floatingLayout = "2006-01-02T15:04:05"

// InLocation returns the instant in loc. A zone-less date-time keeps its
// wall clock and is read as local to loc.
func (t Timestamp) InLocation(loc *time.Location) time.Time {
	if !t.floating {
		return t.Time.In(loc)
	}
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), loc)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
		} else if parsed, err := time.Parse(floatingLayout, s); err == nil {
			t.Time, t.floating = parsed, true
		} else if parsed, err := time.Parse(time.DateOnly, s); err == nil {
			t.Time = parsed
		}
		return nil
	}

	var ms json.Number
	if err := json.Unmarshal(data, &ms); err != nil {
		// null, booleans and objects carry no time
		return nil
	}
	if n, err := ms.Int64(); err == nil {
		t.Time = time.UnixMilli(n).UTC()
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.floating {
		return json.Marshal(t.Time.Format(floatingLayout + ".999999999"))
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
