package listener

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 2 * time.Millisecond
)

// fakeWaiter lets a test fire conditions and fail waits by hand.
type fakeWaiter struct {
	fires  chan Wakeup
	fails  chan error
	cancel chan struct{}
	closed atomic.Bool

	mu    sync.Mutex
	armed Condition
	waits int
}

func newFakeWaiter() *fakeWaiter {
	return &fakeWaiter{
		fires:  make(chan Wakeup, 16),
		fails:  make(chan error, 1),
		cancel: make(chan struct{}, 1),
	}
}

func (w *fakeWaiter) Wait(watched Condition) (Wakeup, error) {
	w.mu.Lock()
	w.armed = watched
	w.waits++
	w.mu.Unlock()

	select {
	case wake := <-w.fires:
		select {
		case <-w.cancel:
			wake.Cancelled = true
		default:
		}
		return wake, nil
	case <-w.cancel:
		return Wakeup{Cancelled: true}, nil
	case err := <-w.fails:
		return Wakeup{}, err
	}
}

func (w *fakeWaiter) Cancel() error {
	select {
	case w.cancel <- struct{}{}:
	default:
	}
	return nil
}

func (w *fakeWaiter) Close() error {
	w.closed.Store(true)
	return nil
}

func (w *fakeWaiter) Armed() Condition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

func (w *fakeWaiter) fire(c Condition, events ...Event) {
	w.fires <- Wakeup{Fired: c, Events: events}
}

type fakeDevices struct {
	mu      sync.Mutex
	waiters map[Handle]*fakeWaiter
	err     error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{waiters: make(map[Handle]*fakeWaiter)}
}

func (d *fakeDevices) factory(h Handle) (Waiter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	w := newFakeWaiter()
	d.waiters[h] = w
	return w, nil
}

func (d *fakeDevices) get(t *testing.T, h Handle) *fakeWaiter {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.waiters[h]
	require.True(t, ok, "no waiter for handle %d", h)
	return w
}

// recorder counts callbacks and forwards them on channels.
type recorder struct {
	dataCalls  atomic.Int64
	eventCalls atomic.Int64
	data       chan Handle
	events     chan Event
}

func newRecorder() *recorder {
	return &recorder{
		data:   make(chan Handle, 64),
		events: make(chan Event, 64),
	}
}

func (r *recorder) OnDataAvailable(h Handle) {
	r.dataCalls.Add(1)
	r.data <- h
}

func (r *recorder) OnEventChange(_ Handle, ev Event) {
	r.eventCalls.Add(1)
	r.events <- ev
}

func (r *recorder) expectData(t *testing.T, h Handle) {
	t.Helper()
	select {
	case got := <-r.data:
		require.Equal(t, h, got)
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for data callback")
	}
}

func (r *recorder) expectEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for event callback")
	}
	return Event{}
}

func joinWorker(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatalf("worker %d did not terminate", w.ID())
	}
}
