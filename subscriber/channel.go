package subscriber

import "sync"

// Channel delivers updates through a buffered Go channel. A push that
// would block fails with ErrOverflow instead, which makes the registry
// drop the subscriber.
type Channel struct {
	Func

	mu     sync.RWMutex
	ch     chan Update
	closed bool
}

// NewChannel creates a channel-based listener with the given buffer size.
func NewChannel(bufSize int) *Channel {
	if bufSize <= 0 {
		bufSize = 128
	}
	c := &Channel{ch: make(chan Update, bufSize)}
	c.Func = c.send
	return c
}

// Updates returns the channel to read updates from. It is closed by Close.
func (c *Channel) Updates() <-chan Update {
	return c.ch
}

func (c *Channel) send(u Update) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- u:
		return nil
	default:
		return ErrOverflow
	}
}

// Close shuts down the listener and closes the update channel.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
