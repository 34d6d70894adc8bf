// Package subscriber provides the listener side of the registry: the
// callback interface each subscriber implements, delivery adapters and the
// subscription table.
package subscriber

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hedeqiang/telreg/status"
)

var (
	// ErrOverflow is returned when a listener cannot accept an update
	// without blocking.
	ErrOverflow = errors.New("subscriber: listener buffer full")

	// ErrClosed is returned when pushing to a closed listener.
	ErrClosed = errors.New("subscriber: listener closed")

	// ErrPanicked is returned when a listener panics during a push.
	ErrPanicked = errors.New("subscriber: listener panicked")
)

// ID identifies a subscriber. Two subscriptions with the same ID refer to
// the same record.
type ID string

// NewID returns a random identity for a subscriber that has none of its own.
func NewID() ID {
	return ID(uuid.NewString())
}

// Listener receives field change notifications. Each method returns an
// error when the update could not be handed to the subscriber; the
// registry then drops the subscriber for good.
//
// Methods are invoked while the registry is locked. They must not block
// and must not call back into the registry.
type Listener interface {
	OnServiceStateChanged(state status.ServiceState) error
	OnSignalStrengthChanged(asu int) error
	OnMessageWaitingChanged(waiting bool) error
	OnCallForwardingChanged(forwarding bool) error
	OnCellLocationChanged(location status.CellLocation) error
	OnCallStateChanged(state status.CallState, incomingNumber string) error
	OnDataConnectionStateChanged(state status.DataState) error
	OnDataActivity(activity status.DataActivity) error
}

// Update carries the new value of a single field. Only the members that
// belong to Field are meaningful.
type Update struct {
	Field          status.Field        `json:"field" cbor:"field"`
	CallState      status.CallState    `json:"callState,omitempty" cbor:"callState,omitempty"`
	IncomingNumber string              `json:"incomingNumber,omitempty" cbor:"incomingNumber,omitempty"`
	ServiceState   status.ServiceState `json:"serviceState,omitzero" cbor:"serviceState,omitempty"`
	SignalStrength int                 `json:"signalStrength,omitempty" cbor:"signalStrength,omitempty"`
	Indicator      bool                `json:"indicator,omitempty" cbor:"indicator,omitempty"`
	DataActivity   status.DataActivity `json:"dataActivity,omitempty" cbor:"dataActivity,omitempty"`
	DataState      status.DataState    `json:"dataState,omitempty" cbor:"dataState,omitempty"`
	CellLocation   status.CellLocation `json:"cellLocation,omitempty" cbor:"cellLocation,omitempty"`
}

// Deliver routes u to the matching Listener method. A panic in the
// listener is returned as an error wrapping ErrPanicked.
func Deliver(l Listener, u Update) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanicked, u.Field, p)
		}
	}()
	return deliver(l, u)
}

func deliver(l Listener, u Update) error {
	switch u.Field {
	case status.ServiceStateField:
		return l.OnServiceStateChanged(u.ServiceState)
	case status.SignalStrengthField:
		return l.OnSignalStrengthChanged(u.SignalStrength)
	case status.MessageWaitingField:
		return l.OnMessageWaitingChanged(u.Indicator)
	case status.CallForwardingField:
		return l.OnCallForwardingChanged(u.Indicator)
	case status.CellLocationField:
		return l.OnCellLocationChanged(u.CellLocation.Clone())
	case status.CallStateField:
		return l.OnCallStateChanged(u.CallState, u.IncomingNumber)
	case status.DataConnectionStateField:
		return l.OnDataConnectionStateChanged(u.DataState)
	case status.DataActivityField:
		return l.OnDataActivity(u.DataActivity)
	default:
		return fmt.Errorf("subscriber: cannot deliver %s", u.Field)
	}
}

// FromSnapshot extracts the current value of field f from s.
func FromSnapshot(s status.Snapshot, f status.Field) Update {
	u := Update{Field: f}
	switch f {
	case status.ServiceStateField:
		u.ServiceState = s.ServiceState
	case status.SignalStrengthField:
		u.SignalStrength = s.SignalStrength
	case status.MessageWaitingField:
		u.Indicator = s.MessageWaiting
	case status.CallForwardingField:
		u.Indicator = s.CallForwarding
	case status.CellLocationField:
		u.CellLocation = s.CellLocation.Clone()
	case status.CallStateField:
		u.CallState = s.CallState
		u.IncomingNumber = s.CallIncomingNumber
	case status.DataConnectionStateField:
		u.DataState = s.DataConnection.State
	case status.DataActivityField:
		u.DataActivity = s.DataActivity
	}
	return u
}

// Func adapts a single function to the Listener interface.
type Func func(Update) error

func (f Func) OnServiceStateChanged(state status.ServiceState) error {
	return f(Update{Field: status.ServiceStateField, ServiceState: state})
}

func (f Func) OnSignalStrengthChanged(asu int) error {
	return f(Update{Field: status.SignalStrengthField, SignalStrength: asu})
}

func (f Func) OnMessageWaitingChanged(waiting bool) error {
	return f(Update{Field: status.MessageWaitingField, Indicator: waiting})
}

func (f Func) OnCallForwardingChanged(forwarding bool) error {
	return f(Update{Field: status.CallForwardingField, Indicator: forwarding})
}

func (f Func) OnCellLocationChanged(location status.CellLocation) error {
	return f(Update{Field: status.CellLocationField, CellLocation: location})
}

func (f Func) OnCallStateChanged(state status.CallState, incomingNumber string) error {
	return f(Update{Field: status.CallStateField, CallState: state, IncomingNumber: incomingNumber})
}

func (f Func) OnDataConnectionStateChanged(state status.DataState) error {
	return f(Update{Field: status.DataConnectionStateField, DataState: state})
}

func (f Func) OnDataActivity(activity status.DataActivity) error {
	return f(Update{Field: status.DataActivityField, DataActivity: activity})
}
