// Package middleware provides decorators around subscriber listeners.
package middleware

import (
	"github.com/hedeqiang/telreg/subscriber"
)

// Middleware wraps a Listener, adding cross-cutting behavior (logging,
// metrics, etc.) to every push it receives.
type Middleware interface {
	// Wrap returns a Listener that decorates next.
	Wrap(next subscriber.Listener) subscriber.Listener
}

// Func adapts a function to Middleware.
type Func func(next subscriber.Listener) subscriber.Listener

// Wrap calls f.
func (f Func) Wrap(next subscriber.Listener) subscriber.Listener {
	return f(next)
}

// Chain applies mws to l in the order provided (first middleware is
// outermost).
func Chain(l subscriber.Listener, mws ...Middleware) subscriber.Listener {
	for i := len(mws) - 1; i >= 0; i-- {
		l = mws[i].Wrap(l)
	}
	return l
}

// intercept turns a per-update hook into a Listener around next.
func intercept(next subscriber.Listener, fn func(u subscriber.Update, deliver func() error) error) subscriber.Listener {
	return subscriber.Func(func(u subscriber.Update) error {
		return fn(u, func() error { return subscriber.Deliver(next, u) })
	})
}
