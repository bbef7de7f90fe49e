package warmup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bank-dashboard/pkg/logging"
	"bank-dashboard/pkg/metrics"
	"bank-dashboard/pkg/session"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when a write was dropped on a full queue.
	ErrQueueFull = errors.New("warmup: queue full")

	// ErrWriterClosed is returned after Close.
	ErrWriterClosed = errors.New("warmup: writer closed")

	// ErrFlushTimeout is returned when Flush gives up.
	ErrFlushTimeout = errors.New("warmup: flush timeout")
)

// Writer copies values into a faster layer off the request path. It
// uses a bounded queue and a small worker pool; when the queue is full a
// write waits up to MaxWaitTime and is then dropped, since a missed
// warm-up only costs one slower read later.
type Writer struct {
	layer   session.Layer
	queue   chan writeOp
	config  Config
	metrics metrics.Collector
	logger  *logging.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	dropped int64
	total   int64
	failed  int64

	depthTicker *time.Ticker
	depthStop   chan struct{}
	closeOnce   sync.Once
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// Config configures a Writer.
type Config struct {
	// QueueSize bounds pending writes (default 256)
	QueueSize int

	// Workers is the worker count (default 2)
	Workers int

	// MaxWaitTime is how long Write waits on a full queue (default 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each layer Set (default 1s)
	WriteTimeout time.Duration

	// DepthInterval is how often queue depth is reported (default 5s)
	DepthInterval time.Duration
}

// New creates a writer for layer and starts its workers.
func New(layer session.Layer, config Config, collector metrics.Collector) *Writer {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime <= 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	if config.DepthInterval <= 0 {
		config.DepthInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Writer{
		layer:       layer,
		queue:       make(chan writeOp, config.QueueSize),
		config:      config,
		metrics:     metrics.OrNoOp(collector),
		logger:      logging.Global().Named("warmup").Named(layer.Name()),
		ctx:         ctx,
		cancel:      cancel,
		depthTicker: time.NewTicker(config.DepthInterval),
		depthStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	go w.reportDepth()

	return w
}

// Write enqueues a copy of value for key.
func (w *Writer) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	op := writeOp{key: key, value: append([]byte(nil), value...), ttl: ttl}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case w.queue <- op:
		atomic.AddInt64(&w.total, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&w.dropped, 1)
		w.metrics.RecordWriteDropped(w.layer.Name())
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWriterClosed
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.apply(op)
		case <-w.ctx.Done():
			// drain what was accepted before Close
			for {
				select {
				case op := <-w.queue:
					w.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) apply(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.layer.Set(ctx, op.key, op.value, op.ttl)
	w.metrics.RecordAsyncWrite(w.layer.Name(), err == nil, time.Since(start))

	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.logger.Debug("warm-up write failed", zap.String("key", op.key), zap.Error(err))
	}
}

// Flush waits until the queue is empty or timeout elapses.
func (w *Writer) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for len(w.queue) > 0 {
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}

	return nil
}

// Close stops accepting writes, drains the queue and waits for workers.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.depthStop)
		w.depthTicker.Stop()
		w.cancel()
		w.wg.Wait()
	})
	return nil
}

func (w *Writer) reportDepth() {
	for {
		select {
		case <-w.depthTicker.C:
			w.metrics.RecordQueueDepth(w.layer.Name(), len(w.queue))
		case <-w.depthStop:
			return
		}
	}
}

// Stats is a snapshot of writer counters.
type Stats struct {
	QueueDepth    int
	TotalWrites   int64
	DroppedWrites int64
	FailedWrites  int64
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	return Stats{
		QueueDepth:    len(w.queue),
		TotalWrites:   atomic.LoadInt64(&w.total),
		DroppedWrites: atomic.LoadInt64(&w.dropped),
		FailedWrites:  atomic.LoadInt64(&w.failed),
	}
}
