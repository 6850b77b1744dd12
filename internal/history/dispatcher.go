package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSendTimeout bounds a single Send call.
const DefaultSendTimeout = 5 * time.Second

// Dispatcher fans events out to sinks on a background goroutine so callers
// never wait on a database. Events that do not fit in the buffer are
// dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	ch      chan Event
	logger  *slog.Logger
	timeout time.Duration
	onDrop  func()

	dropped  atomic.Int64
	mu       sync.RWMutex
	closed   bool
	finished chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithDropHook is called for every dropped event, e.g. to count it.
func WithDropHook(f func()) DispatcherOption {
	return func(d *Dispatcher) { d.onDrop = f }
}

func NewDispatcher(buffer int, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sinks:    append([]Sink(nil), sinks...),
		ch:       make(chan Event, buffer),
		logger:   slog.Default(),
		timeout:  DefaultSendTimeout,
		finished: make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	go d.run()
	return d
}

// Emit queues e without blocking.
func (d *Dispatcher) Emit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop()
		return
	}
	select {
	case d.ch <- e:
	default:
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
}

// Dropped returns the number of events lost to a full buffer or a closed
// dispatcher.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *Dispatcher) run() {
	defer close(d.finished)
	for e := range d.ch {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.logger.Warn("history sink failed", "event", e.Type, "unit", e.Unit, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events, waits until queued ones were delivered or
// ctx expired, and closes sinks implementing io.Closer. It is safe to call
// more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	select {
	case <-d.finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
