package middleware

import (
	"sync/atomic"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

// Metrics counts pushes per field.
type Metrics struct {
	delivered [32]atomic.Uint64
	failed    [32]atomic.Uint64
}

// NewMetrics creates a metrics collection middleware. One instance can
// wrap many listeners.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Wrap decorates the listener with delivery counting.
func (m *Metrics) Wrap(next subscriber.Listener) subscriber.Listener {
	return intercept(next, func(u subscriber.Update, deliver func() error) error {
		err := deliver()
		if i, ok := slot(u.Field); ok {
			if err != nil {
				m.failed[i].Add(1)
			} else {
				m.delivered[i].Add(1)
			}
		}
		return err
	})
}

// Delivered returns the number of successful pushes of f.
func (m *Metrics) Delivered(f status.Field) uint64 {
	if i, ok := slot(f); ok {
		return m.delivered[i].Load()
	}
	return 0
}

// Failed returns the number of failed pushes of f.
func (m *Metrics) Failed(f status.Field) uint64 {
	if i, ok := slot(f); ok {
		return m.failed[i].Load()
	}
	return 0
}

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Delivered map[string]uint64 `json:"delivered"`
	Failed    map[string]uint64 `json:"failed"`
}

// Snapshot copies the counters keyed by field name.
func (m *Metrics) Snapshot() Counts {
	c := Counts{Delivered: map[string]uint64{}, Failed: map[string]uint64{}}
	for _, f := range status.AllFields() {
		c.Delivered[f.String()] = m.Delivered(f)
		c.Failed[f.String()] = m.Failed(f)
	}
	return c
}

// slot maps a single-bit field to its counter index.
func slot(f status.Field) (int, bool) {
	for i := 0; i < 32; i++ {
		if f == 1<<i {
			return i, true
		}
	}
	return 0, false
}
