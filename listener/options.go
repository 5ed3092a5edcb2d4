package listener

import (
	"github.com/RishiGupta12/serial-communication-manager/metrics"
	"go.uber.org/zap"
)

type Option func(*Registry)

// WithCapacity bounds the number of devices holding a looper at once,
// retiring ones included. Zero removes the bound.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		r.capacity = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}
