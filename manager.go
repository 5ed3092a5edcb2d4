//go:build linux

package serial

import (
	"context"
	"sync"

	"github.com/RishiGupta12/serial-communication-manager/config"
	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/RishiGupta12/serial-communication-manager/metrics"
	"github.com/RishiGupta12/serial-communication-manager/waiter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Manager owns open ports and the listeners attached to them. Ports are
// addressed by handles that are never reused.
//
// Lock order: the registry lock is taken before mu.
type Manager struct {
	mu     sync.RWMutex
	ports  map[listener.Handle]*Port
	last   listener.Handle
	closed bool

	opts     *config.Options
	registry *listener.Registry
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewManager creates a Manager. A nil opts uses config.Default().
func NewManager(opts *config.Options) (*Manager, error) {
	if opts == nil {
		opts = config.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		ports:   make(map[listener.Handle]*Port),
		opts:    opts,
		metrics: metrics.New(opts.MetricsNamespace),
		logger:  logs.Named("manager"),
	}
	m.registry = listener.NewRegistry(m.newWaiter,
		listener.WithCapacity(opts.MaxListeners),
		listener.WithMetrics(m.metrics),
	)
	return m, nil
}

// newWaiter runs with the registry lock held.
func (m *Manager) newWaiter(h listener.Handle) (listener.Waiter, error) {
	m.mu.RLock()
	p, ok := m.ports[h]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NewInvalidHandleErr()
	}
	return waiter.New(p.Fd(), waiter.WithLinePollInterval(m.opts.LinePollInterval))
}

// OpenPort opens the device described by cfg and returns its handle.
func (m *Manager) OpenPort(cfg Config) (listener.Handle, error) {
	p, err := Open(cfg)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		p.Close()
		return 0, errs.NewClosedErr()
	}
	m.last++
	h := m.last
	m.ports[h] = p
	m.mu.Unlock()

	m.logger.Info("port opened", zap.Uint64(consts.LogFieldHandle, uint64(h)), zap.String(consts.LogFieldDevice, p.Name()))
	return h, nil
}

func (m *Manager) Port(h listener.Handle) (*Port, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ports[h]
	return p, ok
}

// ClosePort closes the port of h. It fails with DeviceStillListening while a
// listener is attached and waits up to CloseTimeout for a looper that is
// still winding down. It must not be called from a callback of h.
func (m *Manager) ClosePort(h listener.Handle) error {
	if err := m.validate(h); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CloseTimeout)
	defer cancel()

	err := m.registry.Quiesce(ctx, h, func() error {
		m.mu.Lock()
		p, ok := m.ports[h]
		delete(m.ports, h)
		m.mu.Unlock()
		if !ok {
			return errs.NewInvalidHandleErr()
		}
		return p.Close()
	})
	if err != nil {
		m.logger.Warn("close port failed", zap.Uint64(consts.LogFieldHandle, uint64(h)), zap.Error(err))
		return err
	}
	m.logger.Info("port closed", zap.Uint64(consts.LogFieldHandle, uint64(h)))
	return nil
}

func (m *Manager) validate(h listener.Handle) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errs.NewClosedErr()
	}
	if _, ok := m.ports[h]; !ok {
		return errs.NewInvalidHandleErr()
	}
	return nil
}

func (m *Manager) AttachDataListener(h listener.Handle, l listener.DataListener) error {
	if err := m.validate(h); err != nil {
		return err
	}
	return m.registry.AttachDataListener(h, l)
}

func (m *Manager) AttachEventListener(h listener.Handle, l listener.EventListener) error {
	if err := m.validate(h); err != nil {
		return err
	}
	return m.registry.AttachEventListener(h, l)
}

func (m *Manager) DetachDataListener(h listener.Handle) error {
	if err := m.validate(h); err != nil {
		return err
	}
	return m.registry.DetachDataListener(h)
}

func (m *Manager) DetachEventListener(h listener.Handle) error {
	if err := m.validate(h); err != nil {
		return err
	}
	return m.registry.DetachEventListener(h)
}

// Listening returns the conditions watched for h, false when no listener is
// attached.
func (m *Manager) Listening(h listener.Handle) (listener.Condition, bool) {
	return m.registry.Watched(h)
}

// Worker exposes the looper of h so callers can wait for it to terminate.
func (m *Manager) Worker(h listener.Handle) (*listener.Worker, bool) {
	return m.registry.Worker(h)
}

func (m *Manager) Metrics() *metrics.Collector {
	return m.metrics
}

// Close detaches every listener, waits for the loopers to terminate and
// closes all ports. It must not be called from a listener callback.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CloseTimeout)
	defer cancel()
	err := m.registry.Close(ctx)
	if err != nil {
		// ports stay open while a looper may still poll them
		m.logger.Error("loopers did not terminate", zap.Error(err))
		return err
	}

	m.mu.Lock()
	ports := m.ports
	m.ports = make(map[listener.Handle]*Port)
	m.mu.Unlock()

	for _, p := range ports {
		err = multierr.Append(err, p.Close())
	}
	m.logger.Info("manager closed", zap.Int(consts.LogFieldValue, len(ports)))
	return err
}
