package mock

import (
	"context"
	"sync/atomic"
	"time"
)

// Layer is a session.Layer whose behaviour is set through function
// hooks. Unset hooks succeed with zero values. Calls are counted.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	LayerName string

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64
}

// NewLayer returns a mock named name.
func NewLayer(name string) *Layer {
	return &Layer{LayerName: name}
}

func (m *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, nil
}

func (m *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return nil
}

func (m *Layer) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *Layer) Name() string {
	if m.LayerName == "" {
		return "mock"
	}
	return m.LayerName
}

func (m *Layer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// GetCalls returns the number of Get calls.
func (m *Layer) GetCalls() int { return int(atomic.LoadInt64(&m.getCalls)) }

// SetCalls returns the number of Set calls.
func (m *Layer) SetCalls() int { return int(atomic.LoadInt64(&m.setCalls)) }

// DeleteCalls returns the number of Delete calls.
func (m *Layer) DeleteCalls() int { return int(atomic.LoadInt64(&m.deleteCalls)) }

// CloseCalls returns the number of Close calls.
func (m *Layer) CloseCalls() int { return int(atomic.LoadInt64(&m.closeCalls)) }
