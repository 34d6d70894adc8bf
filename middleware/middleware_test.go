package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return Func(func(next subscriber.Listener) subscriber.Listener {
			return intercept(next, func(_ subscriber.Update, deliver func() error) error {
				order = append(order, name)
				return deliver()
			})
		})
	}

	final := subscriber.Func(func(subscriber.Update) error {
		order = append(order, "listener")
		return nil
	})

	l := Chain(final, tag("outer"), tag("inner"))
	require.NoError(t, l.OnSignalStrengthChanged(5))

	assert.Equal(t, []string{"outer", "inner", "listener"}, order)
}

func TestMetricsCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	fail := false
	l := m.Wrap(subscriber.Func(func(subscriber.Update) error {
		if fail {
			return errors.New("gone")
		}
		return nil
	}))

	require.NoError(t, l.OnCallStateChanged(status.CallRinging, "1"))
	require.NoError(t, l.OnCallStateChanged(status.CallIdle, ""))
	fail = true
	assert.Error(t, l.OnCallStateChanged(status.CallIdle, ""))

	assert.Equal(t, uint64(2), m.Delivered(status.CallStateField))
	assert.Equal(t, uint64(1), m.Failed(status.CallStateField))
	assert.Equal(t, uint64(0), m.Delivered(status.SignalStrengthField))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.Delivered["call_state"])
	assert.Equal(t, uint64(1), snap.Failed["call_state"])
}

func TestLoggerPassesThroughValuesAndErrors(t *testing.T) {
	var got subscriber.Update
	l := NewLogger(nil, "test").Wrap(subscriber.Func(func(u subscriber.Update) error {
		got = u
		return nil
	}))

	require.NoError(t, l.OnCellLocationChanged(status.CellLocation{"cid": 9}))
	assert.Equal(t, 9, got.CellLocation["cid"])

	boom := errors.New("boom")
	l = NewLogger(nil, "test").Wrap(subscriber.Func(func(subscriber.Update) error { return boom }))
	assert.ErrorIs(t, l.OnDataActivity(status.DataActivityIn), boom)
}
