package dashboard

import (
	"context"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/logging"

	"go.uber.org/zap"
)

// BalanceView owns the balance panel, the transfer actions and the
// dialog's visibility.
type BalanceView struct {
	api    Upstream
	logger *logging.Logger
}

// LoadBalances fetches the snapshot. On failure the previous snapshot
// stays and the error is recorded for display.
func (v *BalanceView) LoadBalances(ctx context.Context, state *ViewState) error {
	snapshot, err := v.api.Balances(ctx)
	if err != nil {
		state.BalancesError = bankapi.Message(err)
		v.logger.Warn("balances unavailable", zap.String("error_type", bankapi.Classify(err)), zap.Error(err))
		return err
	}

	state.Balances = snapshot
	state.BalancesLoaded = true
	state.BalancesError = ""
	return nil
}

// OpenTransfer selects kind and opens an empty dialog. An already open
// dialog for the same kind is left as is.
func (v *BalanceView) OpenTransfer(state *ViewState, kind string) error {
	k, err := bankapi.ParseTransferKind(kind)
	if err != nil {
		return err
	}
	if state.Dialog.Open && state.Dialog.Kind == k {
		return nil
	}

	state.Dialog.reset()
	state.Dialog.Open = true
	state.Dialog.Kind = k
	return nil
}

// OnTransferSuccess closes the dialog and refreshes balances once.
func (v *BalanceView) OnTransferSuccess(ctx context.Context, state *ViewState, _ TransferCompleted) {
	state.Dialog.reset()
	_ = v.LoadBalances(ctx, state)
}

// OnTransferCancelled closes the dialog and discards the form.
func (v *BalanceView) OnTransferCancelled(state *ViewState) {
	state.Dialog.reset()
}
