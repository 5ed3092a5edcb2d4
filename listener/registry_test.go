package listener

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeDevices) {
	devices := newFakeDevices()
	r := NewRegistry(devices.factory, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, r.Close(ctx))
	})
	return r, devices
}

func TestRegistry_DataListenerWatchesDataOnly(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(1, rec))

	w := devices.get(t, 1)
	require.Eventually(t, func() bool { return w.Armed() == DataAvailable }, waitFor, tick)
	watched, ok := r.Watched(1)
	require.True(t, ok)
	require.Equal(t, DataAvailable, watched)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_BothListenersShareOneWorker(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(1, rec))
	first, ok := r.Worker(1)
	require.True(t, ok)

	require.NoError(t, r.AttachEventListener(1, rec))
	second, ok := r.Worker(1)
	require.True(t, ok)
	require.Equal(t, first.ID(), second.ID())

	w := devices.get(t, 1)
	require.Eventually(t, func() bool { return w.Armed() == AllConditions }, waitFor, tick)

	require.NoError(t, r.DetachDataListener(1))
	require.Eventually(t, func() bool { return w.Armed() == LineOrErrorChange }, waitFor, tick)

	select {
	case <-first.Done():
		t.Fatal("worker terminated while a listener remains")
	default:
	}
	require.False(t, w.closed.Load())
}

func TestRegistry_DetachLastTerminatesWorker(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(1, rec))
	worker, ok := r.Worker(1)
	require.True(t, ok)

	require.NoError(t, r.DetachDataListener(1))
	joinWorker(t, worker)

	_, ok = r.Worker(1)
	require.False(t, ok)
	require.True(t, devices.get(t, 1).closed.Load())
	require.Zero(t, r.Len())

	require.True(t, errors.Is(r.DetachDataListener(1), errs.NewNotAttachedErr()))
	require.True(t, errors.Is(r.DetachEventListener(1), errs.NewNotAttachedErr()))
}

func TestRegistry_AttachTwiceFails(t *testing.T) {
	r, _ := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(1, rec))
	require.True(t, errors.Is(r.AttachDataListener(1, rec), errs.NewAlreadyAttachedErr()))

	require.NoError(t, r.AttachEventListener(1, rec))
	require.True(t, errors.Is(r.AttachEventListener(1, rec), errs.NewAlreadyAttachedErr()))

	watched, _ := r.Watched(1)
	require.Equal(t, AllConditions, watched)
}

func TestRegistry_DetachUnknownKind(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.True(t, errors.Is(r.DetachDataListener(7), errs.NewNotAttachedErr()))

	require.NoError(t, r.AttachEventListener(7, newRecorder()))
	require.True(t, errors.Is(r.DetachDataListener(7), errs.NewNotAttachedErr()))
	watched, _ := r.Watched(7)
	require.Equal(t, LineOrErrorChange, watched)
}

func TestRegistry_NilListener(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(r.AttachDataListener(1, nil)))
	require.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(r.AttachEventListener(1, nil)))
	require.Zero(t, r.Len())
}

func TestRegistry_DataScenario(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()
	const h1 Handle = 1

	require.NoError(t, r.AttachDataListener(h1, rec))
	devices.get(t, h1).fire(DataAvailable)
	rec.expectData(t, h1)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int64(1), rec.dataCalls.Load())

	worker, _ := r.Worker(h1)
	require.NoError(t, r.DetachDataListener(h1))
	joinWorker(t, worker)
	_, ok := r.Watched(h1)
	require.False(t, ok)
	_, ok = r.Worker(h1)
	require.False(t, ok)
}

func TestRegistry_MixedScenario(t *testing.T) {
	r, devices := newTestRegistry(t)
	data := newRecorder()
	event := newRecorder()
	const h2 Handle = 2

	require.NoError(t, r.AttachEventListener(h2, event))
	require.NoError(t, r.AttachDataListener(h2, data))
	w := devices.get(t, h2)
	require.Eventually(t, func() bool { return w.Armed() == AllConditions }, waitFor, tick)
	worker, _ := r.Worker(h2)

	w.fire(LineOrErrorChange, Event{Kind: EventLineChange, Lines: LineCTS, Changed: LineCTS})
	ev := event.expectEvent(t)
	require.Equal(t, EventLineChange, ev.Kind)
	require.Equal(t, LineCTS, ev.Lines)

	w.fire(DataAvailable)
	data.expectData(t, h2)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int64(1), event.eventCalls.Load())
	require.Equal(t, int64(1), data.dataCalls.Load())
	require.Zero(t, event.dataCalls.Load())
	require.Zero(t, data.eventCalls.Load())

	require.NoError(t, r.DetachEventListener(h2))
	require.Eventually(t, func() bool { return w.Armed() == DataAvailable }, waitFor, tick)
	select {
	case <-worker.Done():
		t.Fatal("worker terminated while the data listener remains")
	default:
	}

	require.NoError(t, r.DetachDataListener(h2))
	joinWorker(t, worker)
	require.True(t, w.closed.Load())
}

func TestRegistry_BothConditionsInOneWakeup(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(3, rec))
	require.NoError(t, r.AttachEventListener(3, rec))

	devices.get(t, 3).fire(AllConditions,
		Event{Kind: EventLineChange, Lines: LineDSR, Changed: LineDSR},
		Event{Kind: EventError, Errors: ErrorCounts{Parity: 2}})

	rec.expectData(t, 3)
	require.Equal(t, EventLineChange, rec.expectEvent(t).Kind)
	ev := rec.expectEvent(t)
	require.Equal(t, EventError, ev.Kind)
	require.Equal(t, uint32(2), ev.Errors.Parity)
}

func TestRegistry_NoCallbackAfterDetach(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(4, rec))
	require.NoError(t, r.AttachEventListener(4, rec))
	require.NoError(t, r.DetachEventListener(4))

	w := devices.get(t, 4)
	w.fire(LineOrErrorChange, Event{Kind: EventLineChange})
	w.fire(DataAvailable)
	rec.expectData(t, 4)
	require.Zero(t, rec.eventCalls.Load())
}

func TestRegistry_Capacity(t *testing.T) {
	r, devices := newTestRegistry(t, WithCapacity(3))
	rec := newRecorder()

	for h := Handle(1); h <= 3; h++ {
		require.NoError(t, r.AttachDataListener(h, rec))
	}
	err := r.AttachDataListener(4, rec)
	require.True(t, errors.Is(err, errs.NewResourceExhaustedErr()))
	_, ok := r.Worker(4)
	require.False(t, ok)

	for h := Handle(1); h <= 3; h++ {
		devices.get(t, h).fire(DataAvailable)
		rec.expectData(t, h)
	}

	// the slot comes back once the looper of a detached handle is gone
	worker, _ := r.Worker(1)
	require.NoError(t, r.DetachDataListener(1))
	joinWorker(t, worker)
	require.NoError(t, r.AttachDataListener(4, rec))
}

func TestRegistry_ConcurrentStorm(t *testing.T) {
	r, _ := newTestRegistry(t, WithCapacity(0))
	const handles = 100

	stop := make(chan struct{})
	checked := make(chan struct{})
	go func() {
		defer close(checked)
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.mu.Lock()
			for h, e := range r.entries {
				if e.handle != h {
					t.Errorf("entry for %d keyed under %d", e.handle, h)
				}
				if !e.listening() && e.signal != signalExit {
					t.Errorf("entry %d has no listener and is not retiring", h)
				}
				if e.watched != e.implied() {
					t.Errorf("entry %d watches %v, listeners imply %v", h, e.watched, e.implied())
				}
			}
			r.mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	var wg sync.WaitGroup
	for h := Handle(1); h <= handles; h++ {
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(h Handle, seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				rec := newRecorder()
				for i := 0; i < 50; i++ {
					var err error
					switch rng.Intn(4) {
					case 0:
						err = r.AttachDataListener(h, rec)
					case 1:
						err = r.AttachEventListener(h, rec)
					case 2:
						err = r.DetachDataListener(h)
					case 3:
						err = r.DetachEventListener(h)
					}
					code := errs.GetCode(err)
					if err != nil && code != errs.AlreadyAttachedErrCode && code != errs.NotAttachedErrCode {
						t.Errorf("unexpected error: %v", err)
					}
				}
			}(h, int64(h)*10+int64(g))
		}
	}
	wg.Wait()
	close(stop)
	<-checked

	for h := Handle(1); h <= handles; h++ {
		_ = r.DetachDataListener(h)
		_ = r.DetachEventListener(h)
	}
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.entries) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestRegistry_PanickingListenerKeepsWorker(t *testing.T) {
	c := metrics.New("scm_test")
	r, devices := newTestRegistry(t, WithMetrics(c))
	rec := newRecorder()

	var once sync.Once
	l := DataListenerFunc(func(h Handle) {
		once.Do(func() { panic("listener bug") })
		rec.OnDataAvailable(h)
	})
	require.NoError(t, r.AttachDataListener(5, l))
	worker, _ := r.Worker(5)

	w := devices.get(t, 5)
	w.fire(DataAvailable)
	w.fire(DataAvailable)
	rec.expectData(t, 5)

	select {
	case <-worker.Done():
		t.Fatal("panic terminated the worker")
	default:
	}
	require.Equal(t, float64(1), testutil.ToFloat64(c.DispatchPanics.WithLabelValues(DataAvailable.String())))
	require.Equal(t, float64(1), testutil.ToFloat64(c.Dispatches.WithLabelValues(DataAvailable.String())))
}

func TestRegistry_WaitFailureNotifiesEventListener(t *testing.T) {
	c := metrics.New("scm_test")
	r, devices := newTestRegistry(t, WithMetrics(c))
	rec := newRecorder()

	require.NoError(t, r.AttachEventListener(6, rec))
	require.NoError(t, r.AttachDataListener(6, rec))
	worker, _ := r.Worker(6)

	cause := errors.New("device gone")
	w := devices.get(t, 6)
	w.fails <- cause

	ev := rec.expectEvent(t)
	require.Equal(t, EventWaitFailure, ev.Kind)
	require.True(t, errors.Is(ev.Err, errs.NewUnderlyingWaitFailureErr()))
	require.True(t, errors.Is(ev.Err, cause))

	joinWorker(t, worker)
	require.True(t, w.closed.Load())
	require.True(t, errors.Is(r.DetachEventListener(6), errs.NewNotAttachedErr()))
	require.Equal(t, float64(1), testutil.ToFloat64(c.WaitFailures))
	require.Equal(t, float64(0), testutil.ToFloat64(c.ActiveEntries))
	require.Equal(t, int64(1), rec.eventCalls.Load())
}

func TestRegistry_WaitFailureWithoutEventListener(t *testing.T) {
	r, devices := newTestRegistry(t)
	rec := newRecorder()

	require.NoError(t, r.AttachDataListener(6, rec))
	worker, _ := r.Worker(6)
	devices.get(t, 6).fails <- errors.New("device gone")

	joinWorker(t, worker)
	require.Zero(t, r.Len())
	require.Zero(t, rec.dataCalls.Load())
}

func TestRegistry_WaiterAllocationFailureLeavesNoEntry(t *testing.T) {
	r, devices := newTestRegistry(t)
	devices.err = errors.New("no eventfd")

	err := r.AttachDataListener(8, newRecorder())
	require.True(t, errors.Is(err, errs.NewUnderlyingWaitFailureErr()))
	_, ok := r.Worker(8)
	require.False(t, ok)

	devices.err = errs.NewResourceExhaustedErr()
	err = r.AttachEventListener(8, newRecorder())
	require.True(t, errors.Is(err, errs.NewResourceExhaustedErr()))
	require.Zero(t, r.Len())

	devices.err = nil
	require.NoError(t, r.AttachEventListener(8, newRecorder()))
}

func TestRegistry_FailedCreateIsRolledBack(t *testing.T) {
	r, devices := newTestRegistry(t)

	err := r.attach(9, DataAvailable, func(*entry) error {
		return errs.NewInvalidParamErr()
	})
	require.True(t, errors.Is(err, errs.NewInvalidParamErr()))

	_, ok := r.Worker(9)
	require.False(t, ok)
	require.Zero(t, r.Len())
	require.True(t, devices.get(t, 9).closed.Load())

	require.NoError(t, r.AttachDataListener(9, newRecorder()))
}

func TestRegistry_ReattachWhileRetiringRevivesWorker(t *testing.T) {
	r, devices := newTestRegistry(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := DataListenerFunc(func(Handle) {
		close(entered)
		<-release
	})

	require.NoError(t, r.AttachDataListener(9, blocking))
	worker, _ := r.Worker(9)
	w := devices.get(t, 9)
	w.fire(DataAvailable)
	<-entered

	require.NoError(t, r.DetachDataListener(9))
	require.Zero(t, r.Len())
	retiring, ok := r.Worker(9)
	require.True(t, ok)
	require.Equal(t, worker.ID(), retiring.ID())

	rec := newRecorder()
	require.NoError(t, r.AttachEventListener(9, rec))
	close(release)

	require.Eventually(t, func() bool { return w.Armed() == LineOrErrorChange }, waitFor, tick)
	select {
	case <-worker.Done():
		t.Fatal("revived worker terminated")
	default:
	}
	w.fire(LineOrErrorChange, Event{Kind: EventError, Errors: ErrorCounts{Frame: 1}})
	require.Equal(t, EventError, rec.expectEvent(t).Kind)
}

func TestRegistry_ListenerDetachesItself(t *testing.T) {
	r, devices := newTestRegistry(t)
	detached := make(chan error, 1)
	l := DataListenerFunc(func(h Handle) {
		detached <- r.DetachDataListener(h)
	})

	require.NoError(t, r.AttachDataListener(10, l))
	worker, _ := r.Worker(10)
	devices.get(t, 10).fire(DataAvailable)

	select {
	case err := <-detached:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("listener did not run")
	}
	joinWorker(t, worker)
}

func TestRegistry_Quiesce(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.AttachDataListener(11, newRecorder()))

	ran := false
	err := r.Quiesce(ctx, 11, func() error { ran = true; return nil })
	require.True(t, errors.Is(err, errs.NewDeviceStillListeningErr()))
	require.False(t, ran)

	require.NoError(t, r.DetachDataListener(11))
	require.NoError(t, r.Quiesce(ctx, 11, func() error { ran = true; return nil }))
	require.True(t, ran)
	_, ok := r.Worker(11)
	require.False(t, ok)
}

func TestRegistry_Close(t *testing.T) {
	devices := newFakeDevices()
	r := NewRegistry(devices.factory)
	rec := newRecorder()

	for h := Handle(1); h <= 5; h++ {
		require.NoError(t, r.AttachDataListener(h, rec))
		require.NoError(t, r.AttachEventListener(h, rec))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	for h := Handle(1); h <= 5; h++ {
		require.True(t, devices.get(t, h).closed.Load())
	}
	require.Equal(t, int64(errs.ClosedErrCode), errs.GetCode(r.AttachDataListener(1, rec)))
	require.NoError(t, r.Close(ctx))
}
