package listener

import (
	"runtime"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"go.uber.org/zap"
)

// loop is the looper of one entry. It owns an OS thread for its whole life
// since the device wait blocks in the kernel.
func (r *Registry) loop(e *entry) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.worker.done)

	logger := r.logger.With(
		zap.Uint64(consts.LogFieldHandle, uint64(e.handle)),
		zap.Uint64(consts.LogFieldWorker, e.worker.id),
	)
	logger.Debug("looper started")

	for {
		watched := r.arm(e)
		wake, err := e.waiter.Wait(watched)
		if err != nil {
			r.fail(e, logger, err)
			return
		}

		if wake.Fired != 0 {
			r.dispatch(e, logger, wake)
		}

		if wake.Cancelled && r.settle(e) {
			r.release(e, logger)
			logger.Debug("looper terminated")
			return
		}
	}
}

func (r *Registry) arm(e *entry) Condition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.watched
}

// settle consumes the pending signal after a cancelled wait. It reports true
// when the looper has to exit, in which case the entry is already unlinked.
func (r *Registry) settle(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig := e.signal
	e.signal = signalNone
	switch sig {
	case signalExit:
		r.remove(e)
		return true
	case signalRearm:
		r.metrics.Rearmed()
	}
	return false
}

func (r *Registry) release(e *entry, logger *zap.Logger) {
	if err := e.waiter.Close(); err != nil {
		logger.Warn("close waiter failed", zap.Error(err))
	}
	r.metrics.EntryStopped()
}

// fail terminates the looper after its wait failed. The event listener, if
// any, hears about it once.
func (r *Registry) fail(e *entry, logger *zap.Logger, cause error) {
	r.mu.Lock()
	exiting := e.signal == signalExit
	event := e.event
	e.data, e.event = nil, nil
	e.recompute()
	r.remove(e)
	r.mu.Unlock()

	defer r.release(e, logger)

	if exiting {
		logger.Debug("wait ended while exiting", zap.Error(cause))
		return
	}

	r.metrics.WaitFailed()
	err := errs.NewUnderlyingWaitFailureErr().WithErr(cause)
	if event == nil {
		logger.Error(err.Error())
		return
	}

	logger.Warn(err.Error())
	r.invoke(logger, LineOrErrorChange, func() {
		event.OnEventChange(e.handle, Event{Kind: EventWaitFailure, Err: err})
	})
}

func (r *Registry) dispatch(e *entry, logger *zap.Logger, wake Wakeup) {
	if wake.Fired.Has(DataAvailable) {
		if l := r.dataListener(e); l != nil {
			r.invoke(logger, DataAvailable, func() {
				l.OnDataAvailable(e.handle)
			})
		}
	}

	if wake.Fired.Has(LineOrErrorChange) {
		events := wake.Events
		if len(events) == 0 {
			events = []Event{{Kind: EventLineChange}}
		}
		for _, ev := range events {
			if l := r.eventListener(e); l != nil {
				r.invoke(logger, LineOrErrorChange, func() {
					l.OnEventChange(e.handle, ev)
				})
			}
		}
	}
}

// The listener is looked up right before each call so that no call starts
// after the detach that cleared it has returned.
func (r *Registry) dataListener(e *entry) DataListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.data
}

func (r *Registry) eventListener(e *entry) EventListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.event
}

// invoke runs a listener callback. A panic is logged and swallowed so the
// device keeps its notifications.
func (r *Registry) invoke(logger *zap.Logger, cond Condition, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.DispatchPanicked(cond.String())
			logger.Error("listener panicked",
				zap.Stringer(consts.LogFieldCondition, cond),
				zap.Any(consts.LogFieldValue, p),
				zap.Stack("stack"))
		}
	}()

	fn()
	r.metrics.Dispatched(cond.String())
}
