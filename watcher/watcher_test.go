package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
	"github.com/hedeqiang/telreg/transport"
)

func fastConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.InitialInterval = 10 * time.Millisecond
	cfg.MaxInterval = 50 * time.Millisecond
	cfg.Options.Mask = status.MaskOf(status.SignalStrengthField)
	return cfg
}

func TestWatcherReconnects(t *testing.T) {
	var conns atomic.Int32
	notifyNow := make(chan string, 4)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case notifyNow <- r.URL.Query().Get("notify_now"):
		default:
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := transport.NewSession(context.Background(), conn, transport.JSON, transport.SessionConfig{})
		if conns.Add(1) == 1 {
			s.Close()
			return
		}
		assert.NoError(t, s.OnSignalStrengthChanged(30))
		_ = s.Serve(func(transport.Frame) error { return nil })
	}))
	defer srv.Close()

	ch := subscriber.NewChannel(4)
	w := New(fastConfig(srv.URL), ch)

	var errs atomic.Int32
	w.OnError(func(error) { errs.Add(1) })

	done := make(chan error, 1)
	go func() { done <- w.Watch(context.Background()) }()

	select {
	case u := <-ch.Updates():
		assert.Equal(t, 30, u.SignalStrength)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after reconnect")
	}

	require.NoError(t, w.Stop())
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, errs.Load(), int32(1))
	assert.Equal(t, "true", <-notifyNow)
}

func TestWatcherGivesUpOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	w := New(fastConfig(srv.URL), subscriber.NewChannel(1))
	err := w.Watch(context.Background())

	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestWatcherStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(fastConfig("http://127.0.0.1:1"), subscriber.NewChannel(1))
	assert.NoError(t, w.Watch(ctx))
}

func TestWatcherCanWatchAgain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	w := New(fastConfig(srv.URL), subscriber.NewChannel(1))
	require.Error(t, w.Watch(context.Background()))

	var err error
	require.NotPanics(t, func() { err = w.Watch(context.Background()) })
	assert.Error(t, err)
	assert.NoError(t, w.Stop())
}
