package subscriber

// CallbackFunc is the function signature for update callbacks.
type CallbackFunc func(Update)

// Callback delivers updates by invoking a function in the caller's
// goroutine. Once closed every push fails with ErrClosed.
type Callback struct {
	Func
	fn   CallbackFunc
	done chan struct{}
}

// NewCallback creates a callback-based listener.
func NewCallback(fn CallbackFunc) *Callback {
	c := &Callback{
		fn:   fn,
		done: make(chan struct{}),
	}
	c.Func = c.send
	return c
}

func (c *Callback) send(u Update) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.fn(u)
	return nil
}

// Close stops the listener.
func (c *Callback) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
