package listener

import (
	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"go.uber.org/zap"
)

// AttachDataListener makes the looper of h call l whenever received bytes are
// pending. The looper is started if h has none.
func (r *Registry) AttachDataListener(h Handle, l DataListener) error {
	if l == nil {
		return errs.NewInvalidParamErr()
	}
	return r.attach(h, DataAvailable, func(e *entry) error {
		if e.data != nil {
			return errs.NewAlreadyAttachedErr()
		}
		e.data = l
		return nil
	})
}

// AttachEventListener makes the looper of h call l on line state changes and
// line errors. The looper is started if h has none.
func (r *Registry) AttachEventListener(h Handle, l EventListener) error {
	if l == nil {
		return errs.NewInvalidParamErr()
	}
	return r.attach(h, LineOrErrorChange, func(e *entry) error {
		if e.event != nil {
			return errs.NewAlreadyAttachedErr()
		}
		e.event = l
		return nil
	})
}

// DetachDataListener removes the data listener of h. It returns without
// waiting for the looper; use Worker before detaching to join it.
func (r *Registry) DetachDataListener(h Handle) error {
	return r.detach(h, DataAvailable, func(e *entry) error {
		if e.data == nil {
			return errs.NewNotAttachedErr()
		}
		e.data = nil
		return nil
	})
}

// DetachEventListener removes the event listener of h. It returns without
// waiting for the looper.
func (r *Registry) DetachEventListener(h Handle) error {
	return r.detach(h, LineOrErrorChange, func(e *entry) error {
		if e.event == nil {
			return errs.NewNotAttachedErr()
		}
		e.event = nil
		return nil
	})
}

func (r *Registry) attach(h Handle, kind Condition, set func(*entry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errs.NewClosedErr()
	}

	e, created, err := r.findOrCreate(h)
	if err != nil {
		return err
	}

	if created {
		if err := set(e); err != nil {
			r.discard(e)
			return err
		}
		e.recompute()
		r.spawn(e)
	} else if err := r.mutate(e, set); err != nil {
		r.logger.Debug(err.Error(), zap.Uint64(consts.LogFieldHandle, uint64(h)), zap.Stringer(consts.LogFieldCondition, kind))
		return err
	}

	r.metrics.Attached(kind.String())
	r.logger.Debug("listener attached",
		zap.Uint64(consts.LogFieldHandle, uint64(h)),
		zap.Stringer(consts.LogFieldCondition, kind),
		zap.Stringer("watched", e.watched))
	return nil
}

func (r *Registry) detach(h Handle, kind Condition, clear func(*entry) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return errs.NewNotAttachedErr()
	}
	if err := r.mutate(e, clear); err != nil {
		return err
	}

	r.metrics.Detached(kind.String())
	r.logger.Debug("listener detached",
		zap.Uint64(consts.LogFieldHandle, uint64(h)),
		zap.Stringer(consts.LogFieldCondition, kind),
		zap.Stringer("watched", e.watched))
	return nil
}
