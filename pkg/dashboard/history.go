package dashboard

import (
	"context"

	"bank-dashboard/pkg/bankapi"
	"bank-dashboard/pkg/logging"

	"go.uber.org/zap"
)

// TransactionList shows the history as last fetched, in server order.
type TransactionList struct {
	api    Upstream
	logger *logging.Logger
}

// Load replaces the held list. On failure the previous list stays and
// the error is recorded for display.
func (l *TransactionList) Load(ctx context.Context, state *ViewState) error {
	txs, err := l.api.Transactions(ctx)
	if err != nil {
		state.TransactionsError = bankapi.Message(err)
		l.logger.Warn("transactions unavailable", zap.String("error_type", bankapi.Classify(err)), zap.Error(err))
		return err
	}

	state.Transactions = txs
	state.TransactionsLoaded = true
	state.TransactionsError = ""
	return nil
}

// OnTransferCompleted reloads the history.
func (l *TransactionList) OnTransferCompleted(ctx context.Context, state *ViewState, _ TransferCompleted) {
	_ = l.Load(ctx, state)
}
