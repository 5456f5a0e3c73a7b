package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

const (
	// DefaultBufferSize is used when NewDispatcher is given a non-positive size.
	DefaultBufferSize = 256

	// drainTimeout bounds delivery of queued events after Run's context ends.
	drainTimeout = 5 * time.Second
)

// Sink receives dispatched events.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e auth.Event) error
}

// Dispatcher buffers events and delivers them to sinks.
//
// Thread Safety:
//   - Emit is safe for concurrent use.
//   - Run must be called from exactly one goroutine.
type Dispatcher struct {
	queue   chan auth.Event
	sinks   []Sink
	logger  *logging.Logger
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher delivering to the given sinks.
func NewDispatcher(bufferSize int, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		queue:  make(chan auth.Event, bufferSize),
		sinks:  sinks,
		logger: logger,
	}
}

// Emit queues an event without blocking. A full buffer drops the event.
func (d *Dispatcher) Emit(e auth.Event) {
	select {
	case d.queue <- e:
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("event buffer full, dropping event",
			"action", e.Action,
			"outcome", e.Outcome,
			"dropped_total", n,
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Pending returns the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run delivers events until ctx is cancelled, then drains what is
// already queued within drainTimeout.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e auth.Event) {
	d.logger.Debug("session event",
		"action", e.Action,
		"outcome", e.Outcome,
		"identity", e.Identity,
		"reason", e.Reason,
	)

	for _, sink := range d.sinks {
		if err := sink.Handle(ctx, e); err != nil {
			d.logger.Warn("event sink failed",
				"sink", sink.Name(),
				"action", e.Action,
				"error", err,
			)
		}
	}
}
