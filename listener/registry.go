// Package listener multiplexes data and event listeners for open devices onto
// one looper goroutine per device.
//
// A Registry holds at most one entry per device handle. The first attach for a
// handle allocates the device Waiter and starts a looper pinned to its own OS
// thread; later attaches and detaches change the watched condition set in
// place and kick the looper with a rearm signal. Detaching the last listener
// sends an exit signal instead, and the looper unlinks the entry and releases
// the Waiter on its way out.
//
// Every field of an entry that changes after creation is guarded by the
// Registry mutex, on the looper side as well as on the caller side.
package listener

import (
	"context"
	"sync"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/RishiGupta12/serial-communication-manager/metrics"
	"github.com/luci/go-render/render"
	"go.uber.org/zap"
)

// signal is the request pending for a looper when its Waiter is cancelled.
type signal uint8

const (
	signalNone signal = iota
	signalRearm
	signalExit
)

// Worker identifies the looper of a device.
type Worker struct {
	id   uint64
	done chan struct{}
}

func (w *Worker) ID() uint64 {
	return w.id
}

// Done is closed once the looper has unlinked its entry and released its Waiter.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

type entry struct {
	handle  Handle
	watched Condition
	data    DataListener
	event   EventListener
	waiter  Waiter
	worker  *Worker
	signal  signal
}

func (e *entry) listening() bool {
	return e.data != nil || e.event != nil
}

// implied is the condition set the attached listeners ask for.
func (e *entry) implied() Condition {
	var c Condition
	if e.data != nil {
		c |= DataAvailable
	}
	if e.event != nil {
		c |= LineOrErrorChange
	}
	return c
}

func (e *entry) recompute() {
	e.watched = e.implied()
}

type entryState struct {
	Handle  Handle
	Watched string
	Data    bool
	Event   bool
	Worker  uint64
}

func (e *entry) state() entryState {
	s := entryState{
		Handle:  e.handle,
		Watched: e.watched.String(),
		Data:    e.data != nil,
		Event:   e.event != nil,
	}
	if e.worker != nil {
		s.Worker = e.worker.id
	}
	return s
}

// Registry maps device handles to their listeners and looper goroutines.
type Registry struct {
	mu        sync.Mutex
	entries   map[Handle]*entry
	capacity  int
	newWaiter WaiterFactory
	nextID    uint64
	closed    bool

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRegistry creates a Registry whose loopers wait on waiters built by factory.
func NewRegistry(factory WaiterFactory, opts ...Option) *Registry {
	r := &Registry{
		entries:   make(map[Handle]*entry),
		capacity:  consts.DefaultMaxListeners,
		newWaiter: factory,
		logger:    logs.Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// findOrCreate returns the entry for h, allocating one with a fresh Waiter
// when there is none. The caller holds r.mu and must populate and spawn a
// created entry before releasing it. Nothing is inserted when the Waiter
// cannot be allocated.
func (r *Registry) findOrCreate(h Handle) (*entry, bool, error) {
	if e, ok := r.entries[h]; ok {
		return e, false, nil
	}

	if r.capacity > 0 && len(r.entries) >= r.capacity {
		e := errs.NewResourceExhaustedErr()
		r.logger.Warn(e.Error(), zap.Uint64(consts.LogFieldHandle, uint64(h)), zap.Int(consts.LogFieldValue, r.capacity))
		return nil, false, e
	}

	w, err := r.newWaiter(h)
	if err != nil {
		if errs.GetCode(err) == errs.UnknownErrCode {
			err = errs.NewUnderlyingWaitFailureErr().WithErr(err)
		}
		r.logger.Error(err.Error(), zap.Uint64(consts.LogFieldHandle, uint64(h)))
		return nil, false, err
	}

	e := &entry{handle: h, waiter: w}
	r.entries[h] = e
	return e, true, nil
}

// mutate applies fn to a live entry, recomputes the watched set and signals
// the looper: rearm while any listener remains, exit otherwise. The caller
// holds r.mu. Nothing changes and no signal is sent when fn fails.
func (r *Registry) mutate(e *entry, fn func(*entry) error) error {
	if err := fn(e); err != nil {
		return err
	}

	e.recompute()
	if e.listening() {
		e.signal = signalRearm
	} else {
		e.signal = signalExit
	}

	if err := e.waiter.Cancel(); err != nil {
		r.logger.Error("signal looper failed",
			zap.Uint64(consts.LogFieldHandle, uint64(e.handle)),
			zap.Uint64(consts.LogFieldWorker, e.worker.id),
			zap.Error(err))
	}
	return nil
}

// discard drops an entry created by findOrCreate that never got a looper.
// The caller holds r.mu.
func (r *Registry) discard(e *entry) {
	r.remove(e)
	if err := e.waiter.Close(); err != nil {
		r.logger.Warn("close waiter failed", zap.Uint64(consts.LogFieldHandle, uint64(e.handle)), zap.Error(err))
	}
}

// remove unlinks e. Only the looper owning e calls it, with r.mu held.
func (r *Registry) remove(e *entry) {
	if r.entries[e.handle] == e {
		delete(r.entries, e.handle)
	}
}

// spawn starts the looper of a freshly created entry. The caller holds r.mu.
func (r *Registry) spawn(e *entry) {
	r.nextID++
	e.worker = &Worker{id: r.nextID, done: make(chan struct{})}
	r.metrics.EntryStarted()
	if ce := r.logger.Check(zap.DebugLevel, "looper spawned"); ce != nil {
		ce.Write(zap.String("entry", render.Render(e.state())))
	}
	go r.loop(e)
}

// Worker returns the looper currently owning h, including one that is still
// winding down after its last listener was detached.
func (r *Registry) Worker(h Handle) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return nil, false
	}
	return e.worker, true
}

// Watched returns the condition set the looper of h is asked to wait for.
func (r *Registry) Watched(h Handle) (Condition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok || !e.listening() {
		return 0, false
	}
	return e.watched, true
}

// Len counts handles with at least one listener attached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.listening() {
			n++
		}
	}
	return n
}

// Quiesce runs fn while holding the registry lock, provided h has no entry.
// It waits for a retiring looper of h to finish first and fails with
// DeviceStillListening while any listener is attached to h.
func (r *Registry) Quiesce(ctx context.Context, h Handle, fn func() error) error {
	for {
		done, err := r.quiesce(h, fn)
		if done == nil {
			return err
		}

		select {
		case <-done:
		case <-ctx.Done():
			return errs.NewTimeoutErr().WithErr(ctx.Err())
		}
	}
}

func (r *Registry) quiesce(h Handle, fn func() error) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return nil, fn()
	}
	if e.listening() {
		return nil, errs.NewDeviceStillListeningErr()
	}
	return e.worker.done, nil
}

// Close detaches every listener and waits for all loopers to terminate.
// Attaching fails once Close has been called. Close must not be called from a
// listener callback.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	workers := make([]*Worker, 0, len(r.entries))
	for _, e := range r.entries {
		if e.listening() {
			_ = r.mutate(e, func(e *entry) error {
				e.data, e.event = nil, nil
				return nil
			})
		}
		workers = append(workers, e.worker)
	}
	r.mu.Unlock()

	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return errs.NewTimeoutErr().WithErr(ctx.Err())
		}
	}
	return nil
}
