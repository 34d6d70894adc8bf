package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

var (
	// ErrRemote wraps errors reported by the server in error frames.
	ErrRemote = errors.New("transport: remote error")

	// ErrDeliver wraps failures of the local listener.
	ErrDeliver = errors.New("transport: deliver failed")
)

// DialOptions describes the initial subscription of a Client.
type DialOptions struct {
	Mask      status.Mask
	Label     string
	NotifyNow bool
	Codec     Codec
	Token     string
}

// Client is a remote subscriber connected to the listen endpoint.
type Client struct {
	conn  *websocket.Conn
	codec Codec

	mu        sync.Mutex
	closeOnce sync.Once
}

// ListenURL builds the listen endpoint URL for base (http, https, ws or
// wss) with the subscription in the query string.
func ListenURL(base string, opts DialOptions) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("transport/client: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = joinPath(u.Path, "/v1/listen")

	codec := opts.Codec
	if codec == nil {
		codec = JSON
	}
	q := u.Query()
	q.Set("mask", opts.Mask.String())
	if opts.Label != "" {
		q.Set("label", opts.Label)
	}
	q.Set("notify_now", strconv.FormatBool(opts.NotifyNow))
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the listen endpoint of the server at base.
func Dial(ctx context.Context, base string, opts DialOptions) (*Client, error) {
	target, err := ListenURL(base, opts)
	if err != nil {
		return nil, err
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSON
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport/client: dial: %w", &StatusError{Code: resp.StatusCode, Body: resp.Status})
		}
		return nil, fmt.Errorf("transport/client: dial: %w", err)
	}
	return &Client{conn: conn, codec: codec}, nil
}

// Listen changes the subscription. An empty mask unsubscribes while the
// connection stays open.
func (c *Client) Listen(mask status.Mask, label string, notifyNow bool) error {
	data, err := c.codec.Marshal(ListenFrame(mask, label, notifyNow))
	if err != nil {
		return fmt.Errorf("transport/client: encode listen: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
		return fmt.Errorf("transport/client: write: %w", err)
	}
	return nil
}

// Run reads pushes and delivers them to l until ctx is done, the server
// closes the connection, the server reports an error, or l fails.
func (c *Client) Run(ctx context.Context, l subscriber.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("transport/client: read: %w", err)
		}

		var f Frame
		if err := c.codec.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("transport/client: decode: %w", err)
		}
		if f.Type == TypeError {
			return fmt.Errorf("%w: %s", ErrRemote, f.Error)
		}
		u, err := f.PushUpdate()
		if err != nil {
			log.Debugf("client: skipping frame: %v", err)
			continue
		}
		if err := subscriber.Deliver(l, u); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDeliver, u.Field, err)
		}
	}
}

// Close sends a close message and terminates the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func joinPath(base, p string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + p
}
