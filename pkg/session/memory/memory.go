package memory

import (
	"context"
	"sync"
	"time"

	"bank-dashboard/pkg/session"
)

// MemoryLayer is an in-process session layer with TTL expiry and
// least-recently-used eviction once MaxEntries is reached.
type MemoryLayer struct {
	data   map[string]*entry
	mu     sync.RWMutex
	config Config

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

type entry struct {
	value      []byte
	expiresAt  time.Time
	accessedAt time.Time
}

// Config holds configuration for the memory layer.
type Config struct {
	// Name is the layer identifier
	Name string

	// MaxEntries bounds the number of keys (0 = unlimited)
	MaxEntries int

	// DefaultTTL applies when Set is called with a zero ttl
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are swept
	CleanupInterval time.Duration
}

// New creates a memory layer and starts its cleanup goroutine.
func New(config Config) *MemoryLayer {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = session.DefaultTTL
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	m := &MemoryLayer{
		data:          make(map[string]*entry),
		config:        config,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	m.wg.Add(1)
	go m.cleanup()

	return m
}

// Get returns a copy of the value under key.
func (m *MemoryLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := session.ValidateKey(key); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return nil, session.ErrNotFound
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		delete(m.data, key)
		return nil, session.ErrNotFound
	}
	e.accessedAt = now

	return cloneBytes(e.value), nil
}

// Set stores a copy of value. When the layer is full the least recently
// used key is evicted first.
func (m *MemoryLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := session.ValidateKey(key); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && m.config.MaxEntries > 0 && len(m.data) >= m.config.MaxEntries {
		m.evictLRU()
	}

	m.data[key] = &entry{
		value:      cloneBytes(value),
		expiresAt:  now.Add(ttl),
		accessedAt: now,
	}

	return nil
}

// Delete removes key.
func (m *MemoryLayer) Delete(ctx context.Context, key string) error {
	if err := session.ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

// Name returns the layer name.
func (m *MemoryLayer) Name() string {
	return m.config.Name
}

// Close stops the cleanup goroutine and drops all data.
func (m *MemoryLayer) Close() error {
	m.closeOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.stopCleanup)
		m.wg.Wait()

		m.mu.Lock()
		m.data = make(map[string]*entry)
		m.mu.Unlock()
	})
	return nil
}

// Len returns the number of stored keys, expired ones included until swept.
func (m *MemoryLayer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// evictLRU must be called with mu held.
func (m *MemoryLayer) evictLRU() {
	var lruKey string
	var lruTime time.Time

	for k, e := range m.data {
		if lruKey == "" || e.accessedAt.Before(lruTime) {
			lruKey = k
			lruTime = e.accessedAt
		}
	}

	if lruKey != "" {
		delete(m.data, lruKey)
	}
}

func (m *MemoryLayer) cleanup() {
	defer m.wg.Done()

	for {
		select {
		case <-m.cleanupTicker.C:
			m.removeExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *MemoryLayer) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, e := range m.data {
		if now.After(e.expiresAt) {
			delete(m.data, key)
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
