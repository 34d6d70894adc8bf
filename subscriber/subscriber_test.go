package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/telreg/status"
)

func TestDeliverRoutesEveryField(t *testing.T) {
	snap := status.NewSnapshot()
	snap.CallState = status.CallRinging
	snap.CallIncomingNumber = "555-1234"
	snap.SignalStrength = 17
	snap.MessageWaiting = true
	snap.CellLocation = status.CellLocation{"lac": 4}

	for _, f := range status.AllFields() {
		var got Update
		l := Func(func(u Update) error {
			got = u
			return nil
		})

		require.NoError(t, Deliver(l, FromSnapshot(snap, f)))
		assert.Equal(t, f, got.Field, f.String())
	}
}

func TestFromSnapshotCallState(t *testing.T) {
	snap := status.NewSnapshot()
	snap.CallState = status.CallOffhook
	snap.CallIncomingNumber = "123"

	u := FromSnapshot(snap, status.CallStateField)
	assert.Equal(t, status.CallOffhook, u.CallState)
	assert.Equal(t, "123", u.IncomingNumber)
}

func TestDeliverUnknownField(t *testing.T) {
	err := Deliver(Func(func(Update) error { return nil }), Update{Field: 0x400})
	assert.Error(t, err)
}

func TestDeliverRecoversPanic(t *testing.T) {
	l := Func(func(Update) error { panic("peer gone") })
	err := Deliver(l, Update{Field: status.SignalStrengthField, SignalStrength: 3})
	require.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "peer gone")
}

func TestCallbackClose(t *testing.T) {
	var calls int
	cb := NewCallback(func(Update) { calls++ })

	require.NoError(t, cb.OnSignalStrengthChanged(3))
	cb.Close()
	cb.Close()

	assert.ErrorIs(t, cb.OnSignalStrengthChanged(4), ErrClosed)
	assert.Equal(t, 1, calls)
}

func TestChannelOverflow(t *testing.T) {
	ch := NewChannel(1)

	require.NoError(t, ch.OnCallStateChanged(status.CallRinging, "1"))
	assert.ErrorIs(t, ch.OnCallStateChanged(status.CallIdle, ""), ErrOverflow)

	u := <-ch.Updates()
	assert.Equal(t, status.CallRinging, u.CallState)
}

func TestChannelClosed(t *testing.T) {
	ch := NewChannel(4)
	ch.Close()

	assert.ErrorIs(t, ch.OnDataActivity(status.DataActivityIn), ErrClosed)
	_, ok := <-ch.Updates()
	assert.False(t, ok)
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
