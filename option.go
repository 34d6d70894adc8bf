package telreg

import (
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/middleware"
)

// Option configures a Registry.
type Option func(*Registry)

// WithSink sets the sink that receives sticky announcements.
func WithSink(s broadcast.Sink) Option {
	return func(r *Registry) {
		r.sink = s
	}
}

// WithChecker sets the capability checker for location subscriptions and
// dumps.
func WithChecker(c capability.Checker) Option {
	return func(r *Registry) {
		r.checker = c
	}
}

// WithMiddleware wraps every listener registered afterwards.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(r *Registry) {
		r.middlewares = append(r.middlewares, mw...)
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Registry) {
		r.config = cfg
	}
}

// WithName sets the registry name.
func WithName(name string) Option {
	return func(r *Registry) {
		r.config.Name = name
	}
}

// WithLogLevel sets the log verbosity level.
func WithLogLevel(level string) Option {
	return func(r *Registry) {
		r.config.LogLevel = level
	}
}
