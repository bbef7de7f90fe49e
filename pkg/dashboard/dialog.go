package dashboard

import (
	"context"
	"errors"
	"time"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/logging"

	"go.uber.org/zap"
)

var (
	// ErrSubmissionPending rejects a submit while another is outstanding.
	ErrSubmissionPending = errors.New("dashboard: transfer submission pending")

	// ErrDialogClosed rejects form changes and submits with no open dialog.
	ErrDialogClosed = errors.New("dashboard: transfer dialog is not open")
)

// TransferDialog collects an amount and a one-time passcode and submits
// them to the endpoint of the selected kind. Neither field is validated.
type TransferDialog struct {
	api        Upstream
	events     *Events
	checkpoint func(ctx context.Context, state *ViewState) error
	staleAfter time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// SetFields records the form as entered.
func (d *TransferDialog) SetFields(state *ViewState, amount, otp string) error {
	if !state.Dialog.Open {
		return ErrDialogClosed
	}
	if d.pending(state) {
		return ErrSubmissionPending
	}
	state.Dialog.Amount = amount
	state.Dialog.OTP = otp
	return nil
}

// Submit posts the form. On success TransferCompleted is published and
// the subscribers close the dialog. On failure the dialog stays open with
// the form unchanged and the error recorded.
func (d *TransferDialog) Submit(ctx context.Context, state *ViewState) error {
	if !state.Dialog.Open {
		return ErrDialogClosed
	}
	if d.pending(state) {
		return ErrSubmissionPending
	}

	state.Dialog.Pending = true
	state.Dialog.PendingSince = d.now().UTC()
	state.Dialog.Error = ""
	if d.checkpoint != nil {
		if err := d.checkpoint(ctx, state); err != nil {
			state.Dialog.Pending = false
			state.Dialog.PendingSince = time.Time{}
			return err
		}
	}

	kind := state.Dialog.Kind
	err := d.api.SubmitTransfer(ctx, kind, bankapi.TransferRequest{
		Amount: state.Dialog.Amount,
		OTP:    state.Dialog.OTP,
	})

	state.Dialog.Pending = false
	state.Dialog.PendingSince = time.Time{}

	if err != nil {
		state.Dialog.Error = bankapi.Message(err)
		d.logger.Warn("transfer failed",
			zap.String("kind", kind.String()),
			zap.String("error_type", bankapi.Classify(err)),
			zap.Error(err),
		)
		return err
	}

	d.logger.Info("transfer accepted", zap.String("kind", kind.String()))
	d.events.Publish(ctx, state, TransferCompleted{Kind: kind})
	return nil
}

// pending reports an outstanding submission. A flag older than
// staleAfter belongs to a request that never finished.
func (d *TransferDialog) pending(state *ViewState) bool {
	if !state.Dialog.Pending {
		return false
	}
	if d.staleAfter > 0 && d.now().Sub(state.Dialog.PendingSince) > d.staleAfter {
		d.logger.Info("ignoring abandoned pending transfer", zap.Time("pending_since", state.Dialog.PendingSince))
		return false
	}
	return true
}
