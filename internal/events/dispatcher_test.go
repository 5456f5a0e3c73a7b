package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
)

// recordingSink collects delivered events.
type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []auth.Event
	got    chan struct{}
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name, got: make(chan struct{}, 64)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(_ context.Context, e auth.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func (s *recordingSink) Events() []auth.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.Event(nil), s.events...)
}

func (s *recordingSink) waitFor(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("sink %s: timed out waiting for %d events", s.name, n)
		}
	}
}

func event(action, outcome string) auth.Event {
	return auth.Event{Action: action, Outcome: outcome, Identity: "a@b.com", At: time.Now().UTC()}
}

func runDispatcher(t *testing.T, d *Dispatcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestDispatcher_DeliversToEverySinkInOrder(t *testing.T) {
	first := newRecordingSink("first")
	second := newRecordingSink("second")
	d := NewDispatcher(8, logging.Discard(), first, second)

	stop := runDispatcher(t, d)
	defer stop()

	d.Emit(event(auth.ActionRegister, auth.OutcomeSuccess))
	d.Emit(event(auth.ActionLogin, auth.OutcomeFailure))

	first.waitFor(t, 2)
	second.waitFor(t, 2)

	for _, sink := range []*recordingSink{first, second} {
		got := sink.Events()
		require.Len(t, got, 2)
		assert.Equal(t, auth.ActionRegister, got[0].Action)
		assert.Equal(t, auth.ActionLogin, got[1].Action)
	}
}

func TestDispatcher_FailingSinkDoesNotStopOthers(t *testing.T) {
	broken := newRecordingSink("broken")
	broken.err = errors.New("sink down")
	healthy := newRecordingSink("healthy")
	d := NewDispatcher(8, logging.Discard(), broken, healthy)

	stop := runDispatcher(t, d)
	defer stop()

	d.Emit(event(auth.ActionLogout, auth.OutcomeSuccess))

	healthy.waitFor(t, 1)
	assert.Len(t, broken.Events(), 1)
}

func TestDispatcher_FullBufferDrops(t *testing.T) {
	d := NewDispatcher(2, logging.Discard())

	start := time.Now()
	for range 5 {
		d.Emit(event(auth.ActionRefresh, auth.OutcomeSuccess))
	}

	assert.Less(t, time.Since(start), time.Second, "Emit must not block")
	assert.Equal(t, 2, d.Pending())
	assert.Equal(t, uint64(3), d.Dropped())
}

func TestDispatcher_DrainsQueuedEventsOnShutdown(t *testing.T) {
	sink := newRecordingSink("sink")
	d := NewDispatcher(8, logging.Discard(), sink)

	for range 3 {
		d.Emit(event(auth.ActionLogin, auth.OutcomeSuccess))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Len(t, sink.Events(), 3)
	assert.Zero(t, d.Pending())
}

func TestNewDispatcher_DefaultBuffer(t *testing.T) {
	d := NewDispatcher(0, logging.Discard())
	assert.Equal(t, DefaultBufferSize, cap(d.queue))
}

func TestDispatcher_ImplementsEventEmitter(t *testing.T) {
	var _ auth.EventEmitter = NewDispatcher(1, logging.Discard())
}
