// Package watcher keeps a remote subscription alive across disconnects.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"

	"github.com/hedeqiang/telreg/subscriber"
	"github.com/hedeqiang/telreg/transport"
)

var log = logging.Logger("telreg/watcher")

var errDisconnected = errors.New("watcher: disconnected")

// Config configures a Watcher.
type Config struct {
	// URL is the base URL of the registry server.
	URL string

	// Options is the subscription requested on every connect. NotifyNow
	// is always set so the listener catches up after a reconnect.
	Options transport.DialOptions

	// InitialInterval is the first reconnect delay.
	InitialInterval time.Duration

	// MaxInterval caps the reconnect delay.
	MaxInterval time.Duration

	// MaxElapsedTime gives up reconnecting after this long without a
	// connection. Zero retries forever.
	MaxElapsedTime time.Duration
}

// DefaultConfig returns sensible reconnect defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// Watcher subscribes to a remote registry and reconnects with
// exponential backoff whenever the connection drops.
type Watcher struct {
	cfg      Config
	listener subscriber.Listener

	mu        sync.Mutex
	onError   func(error)
	onConnect func()
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// New creates a Watcher that delivers pushes to l.
func New(cfg Config, l subscriber.Listener) *Watcher {
	cfg.Options.NotifyNow = true
	return &Watcher{
		cfg:      cfg,
		listener: l,
	}
}

// OnError registers a callback for connection errors that trigger a
// reconnect.
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// OnConnect registers a callback invoked after every successful connect.
func (w *Watcher) OnConnect(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onConnect = fn
}

// Watch connects and delivers pushes until ctx is done or Stop is called,
// in which case it returns nil. It returns an error when the server
// rejects the subscription, the listener fails, or reconnecting gives up.
func (w *Watcher) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.stopped = stopped
	w.mu.Unlock()

	defer close(stopped)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialInterval
	b.MaxInterval = w.cfg.MaxInterval
	b.MaxElapsedTime = w.cfg.MaxElapsedTime

	op := func() error {
		c, err := transport.Dial(ctx, w.cfg.URL, w.cfg.Options)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var se *transport.StatusError
			if errors.As(err, &se) && se.Code < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		defer c.Close()

		b.Reset()
		w.emitConnect()
		log.Debugf("connected to %s mask=%s", w.cfg.URL, w.cfg.Options.Mask)

		err = c.Run(ctx, w.listener)
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case err == nil:
			return errDisconnected
		case errors.Is(err, transport.ErrRemote):
			return backoff.Permanent(err)
		case errors.Is(err, transport.ErrDeliver):
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		log.Warnf("watch %s: %v; reconnecting in %s", w.cfg.URL, err, next)
		w.emitError(err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	return nil
}

// Stop terminates the watcher and waits for Watch to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	return nil
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	fn := w.onError
	w.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (w *Watcher) emitConnect() {
	w.mu.Lock()
	fn := w.onConnect
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}
