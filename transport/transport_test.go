package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

func TestFrameCodecs(t *testing.T) {
	in := PushFrame(subscriber.Update{
		Field:          status.CallStateField,
		CallState:      status.CallRinging,
		IncomingNumber: "555",
	})
	for _, c := range []Codec{JSON, CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out Frame
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, "call_state", out.Type)

			u, err := out.PushUpdate()
			require.NoError(t, err)
			assert.Equal(t, status.CallStateField, u.Field)
			assert.Equal(t, status.CallRinging, u.CallState)
			assert.Equal(t, "555", u.IncomingNumber)
		})
	}
}

func TestJSONFrameShape(t *testing.T) {
	data, err := JSON.Marshal(PushFrame(subscriber.Update{Field: status.SignalStrengthField, SignalStrength: 12}))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "signal_strength", m["type"])
	assert.EqualValues(t, 12, m["signalStrength"])
}

func TestPushUpdateRejectsControlFrames(t *testing.T) {
	_, err := ListenFrame(status.AllMask, "x", true).PushUpdate()
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, c.MessageType())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestListenURL(t *testing.T) {
	got, err := ListenURL("http://127.0.0.1:8080/", DialOptions{
		Mask:      status.MaskOf(status.CallStateField),
		Label:     "cli",
		NotifyNow: true,
		Codec:     CBOR,
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/v1/listen?codec=cbor&label=cli&mask=0x20&notify_now=true", got)
}

// sessionServer upgrades every request into a Session and hands it to fn.
func sessionServer(t *testing.T, codec Codec, fn func(*Session)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(NewSession(context.Background(), conn, codec, SessionConfig{OutboxSize: 8, WriteTimeout: time.Second}))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSessionToClient(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			listens := make(chan Frame, 1)
			srv := sessionServer(t, codec, func(s *Session) {
				assert.NoError(t, s.OnSignalStrengthChanged(21))
				assert.NoError(t, s.OnCellLocationChanged(status.CellLocation{"cid": 3}))
				_ = s.Serve(func(f Frame) error {
					listens <- f
					return nil
				})
			})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			c, err := Dial(ctx, srv.URL, DialOptions{Mask: status.AllMask, Codec: codec})
			require.NoError(t, err)
			defer c.Close()

			ch := subscriber.NewChannel(8)
			go func() { _ = c.Run(ctx, ch) }()

			u := <-ch.Updates()
			assert.Equal(t, status.SignalStrengthField, u.Field)
			assert.Equal(t, 21, u.SignalStrength)
			u = <-ch.Updates()
			assert.Equal(t, 3, u.CellLocation["cid"])

			require.NoError(t, c.Listen(status.MaskOf(status.CallStateField), "again", false))
			f := <-listens
			assert.Equal(t, TypeListen, f.Type)
			assert.Equal(t, status.MaskOf(status.CallStateField), f.Mask)
			assert.Equal(t, "again", f.Label)
		})
	}
}

func TestClientReturnsRemoteError(t *testing.T) {
	srv := sessionServer(t, JSON, func(s *Session) {
		_ = s.Serve(func(Frame) error { return assert.AnError })
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.URL, DialOptions{Mask: status.AllMask})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Listen(status.AllMask, "", false))
	err = c.Run(ctx, subscriber.Func(func(subscriber.Update) error { return nil }))
	assert.ErrorIs(t, err, ErrRemote)
}

func TestClosedSessionFailsPushes(t *testing.T) {
	result := make(chan error, 1)
	srv := sessionServer(t, JSON, func(s *Session) {
		s.Close()
		result <- s.OnMessageWaitingChanged(true)
	})

	c, err := Dial(context.Background(), srv.URL, DialOptions{Mask: status.AllMask})
	require.NoError(t, err)
	defer c.Close()

	assert.ErrorIs(t, <-result, subscriber.ErrClosed)
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/notify/call_state", r.URL.Path)

		var req NotifyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RINGING", req.State)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, "tok").Notify(context.Background(), "call_state", NotifyRequest{State: "RINGING"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}
