package dashboard

import (
	"context"
	"sync"

	"bank-dashboard/pkg/bankapi"
)

// TransferCompleted is published after the upstream accepted a transfer.
type TransferCompleted struct {
	Kind bankapi.TransferKind
}

// TransferHandler reacts to a completed transfer by updating state.
type TransferHandler func(ctx context.Context, state *ViewState, event TransferCompleted)

// Events connects the transfer dialog to the views that must refresh
// after a transfer. Handlers run synchronously in subscription order.
type Events struct {
	mu       sync.RWMutex
	handlers []TransferHandler
}

// Subscribe registers h for TransferCompleted.
func (e *Events) Subscribe(h TransferHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Publish runs every handler against state.
func (e *Events) Publish(ctx context.Context, state *ViewState, event TransferCompleted) {
	e.mu.RLock()
	handlers := append([]TransferHandler(nil), e.handlers...)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, state, event)
	}
}
