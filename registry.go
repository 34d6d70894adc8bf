// Package telreg provides a process-wide telephony state registry.
//
// The registry keeps the last known value of every status field and pushes
// changes to subscribers that selected the field in their interest mask.
// A subscriber whose listener fails is dropped; the others are unaffected.
//
// Usage:
//
//	r := telreg.New(
//	    telreg.WithSink(broadcast.NewSticky(nil)),
//	    telreg.WithChecker(capability.AllowAll),
//	)
//
//	ch := subscriber.NewChannel(64)
//	r.Listen(ctx, telreg.Subscription{
//	    ID:        "dialer",
//	    Listener:  ch,
//	    Mask:      status.MaskOf(status.CallStateField),
//	    NotifyNow: true,
//	})
//
//	r.NotifyCallState(status.CallRinging, "555-1234")
package telreg

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/middleware"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

var log = logging.Logger("telreg")

// Registry holds the status snapshot and the subscription table. A single
// mutex serializes every update, subscription and dump, so a subscriber
// replaying the current state never misses a concurrent update.
type Registry struct {
	sink        broadcast.Sink
	checker     capability.Checker
	middlewares []middleware.Middleware
	config      Config

	mu     sync.Mutex
	table  *subscriber.Table
	snap   status.Snapshot
	closed bool
}

// New creates a Registry with the given options. Without options,
// announcements are discarded and guarded operations are denied.
func New(opts ...Option) *Registry {
	r := &Registry{
		sink:    broadcast.Discard,
		checker: capability.DenyAll,
		config:  DefaultConfig(),
		table:   subscriber.NewTable(),
		snap:    status.NewSnapshot(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.config.LogLevel != "" {
		if err := logging.SetLogLevel("telreg", r.config.LogLevel); err != nil {
			log.Warnf("invalid log level %q: %v", r.config.LogLevel, err)
		}
	}
	return r
}

// Subscription describes a Listen request.
type Subscription struct {
	// ID identifies the subscriber. Listening again with the same ID
	// updates the existing registration.
	ID subscriber.ID

	// Listener receives the pushes.
	Listener subscriber.Listener

	// Label is shown in dumps.
	Label string

	// Mask selects the fields to receive. An empty mask unsubscribes.
	Mask status.Mask

	// NotifyNow replays the current value of every selected field before
	// Listen returns.
	NotifyNow bool
}

// Listen registers, updates or removes a subscription.
func (r *Registry) Listen(ctx context.Context, s Subscription) error {
	if s.Mask.Empty() {
		r.mu.Lock()
		removed := r.table.Remove(s.ID)
		r.mu.Unlock()
		if removed {
			log.Debugf("unsubscribed %s (%s)", s.ID, s.Label)
		}
		return nil
	}
	if s.Listener == nil {
		return ErrNoListener
	}
	if extra := s.Mask &^ status.AllMask; extra != 0 {
		return fmt.Errorf("%w: mask bits %s", ErrUnknownField, extra)
	}
	if s.Mask.Location() {
		if err := r.checker.Check(ctx, capability.CoarseLocation); err != nil {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}

	l := middleware.Chain(s.Listener, r.middlewares...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	_, added := r.table.Upsert(s.ID, l, s.Label, s.Mask)
	log.Debugf("listen %s (%s) mask=%s added=%s notifyNow=%t", s.ID, s.Label, s.Mask, added, s.NotifyNow)

	if !s.NotifyNow {
		return nil
	}
	for _, f := range s.Mask.Fields() {
		if err := subscriber.Deliver(l, subscriber.FromSnapshot(r.snap, f)); err != nil {
			r.table.Remove(s.ID)
			log.Warnf("dropped %s (%s) during replay of %s: %v", s.ID, s.Label, f, err)
			return fmt.Errorf("%w: replay %s: %w", ErrListenerFailed, f, err)
		}
	}
	return nil
}

// Unlisten removes the subscription of id. It is the same as listening
// with an empty mask.
func (r *Registry) Unlisten(id subscriber.ID) {
	_ = r.Listen(context.Background(), Subscription{ID: id})
}

// NotifyCallState records the call state and pushes it.
func (r *Registry) NotifyCallState(state status.CallState, incomingNumber string) {
	r.dispatch(status.CallStateField, func(s *status.Snapshot) {
		s.CallState = state
		s.CallIncomingNumber = incomingNumber
	})
	r.publish(broadcast.TopicPhoneState, broadcast.PhoneState(state, incomingNumber))
}

// NotifyServiceState records the service state and pushes it.
func (r *Registry) NotifyServiceState(state status.ServiceState) {
	r.dispatch(status.ServiceStateField, func(s *status.Snapshot) {
		s.ServiceState = state
	})
	r.publish(broadcast.TopicServiceState, broadcast.ServiceState(state))
}

// NotifySignalStrength records the signal strength in ASU and pushes it.
func (r *Registry) NotifySignalStrength(asu int) {
	r.dispatch(status.SignalStrengthField, func(s *status.Snapshot) {
		s.SignalStrength = asu
	})
	r.publish(broadcast.TopicSignalStrength, broadcast.SignalStrength(asu))
}

// NotifyMessageWaiting records the message waiting indicator and pushes it.
func (r *Registry) NotifyMessageWaiting(waiting bool) {
	r.dispatch(status.MessageWaitingField, func(s *status.Snapshot) {
		s.MessageWaiting = waiting
	})
}

// NotifyCallForwarding records the call forwarding indicator and pushes it.
func (r *Registry) NotifyCallForwarding(forwarding bool) {
	r.dispatch(status.CallForwardingField, func(s *status.Snapshot) {
		s.CallForwarding = forwarding
	})
}

// NotifyDataActivity records the data activity direction and pushes it.
func (r *Registry) NotifyDataActivity(activity status.DataActivity) {
	r.dispatch(status.DataActivityField, func(s *status.Snapshot) {
		s.DataActivity = activity
	})
}

// NotifyDataConnection records the data connection and pushes its state.
func (r *Registry) NotifyDataConnection(state status.DataState, possible bool, reason, apn, iface string) {
	dc := status.DataConnection{
		State:         state,
		Possible:      possible,
		Reason:        reason,
		APN:           apn,
		InterfaceName: iface,
	}
	r.dispatch(status.DataConnectionStateField, func(s *status.Snapshot) {
		s.DataConnection = dc
	})
	r.publish(broadcast.TopicDataConnectionState, broadcast.DataConnectionState(dc))
}

// NotifyDataConnectionFailed records why a data connection attempt failed.
// Listeners have no callback for it; it is only announced.
func (r *Registry) NotifyDataConnectionFailed(reason string) {
	r.mu.Lock()
	r.snap.DataFailReason = reason
	r.mu.Unlock()
	r.publish(broadcast.TopicDataConnectionFailed, broadcast.DataConnectionFailed(reason))
}

// NotifyCellLocation records the cell location and pushes it.
func (r *Registry) NotifyCellLocation(location status.CellLocation) {
	location = location.Clone()
	r.dispatch(status.CellLocationField, func(s *status.Snapshot) {
		s.CellLocation = location
	})
}

// Snapshot returns a copy of the last known state.
func (r *Registry) Snapshot() status.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone()
}

// Subscribers returns the current records, oldest first.
func (r *Registry) Subscribers() []subscriber.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.DumpAll()
}

// Close drops every subscriber and rejects further subscriptions.
// Updates are still recorded.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.table.Clear()
}

// dispatch applies update to the snapshot and pushes field f to every
// interested subscriber, dropping those whose listener fails.
func (r *Registry) dispatch(f status.Field, update func(*status.Snapshot)) {
	removed := func() []subscriber.Record {
		r.mu.Lock()
		defer r.mu.Unlock()
		update(&r.snap)
		u := subscriber.FromSnapshot(r.snap, f)
		return r.table.ForEachInterested(f, func(rec subscriber.Record) error {
			return subscriber.Deliver(rec.Listener, u)
		})
	}()

	for _, rec := range removed {
		log.Warnf("dropped %s (%s): push of %s failed", rec.ID, rec.Label, f)
	}
}

// publish hands an announcement to the sink. Sink failures, including
// panics, never reach the caller.
func (r *Registry) publish(topic string, fields broadcast.Fields) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("broadcast %s: %v", topic, p)
		}
	}()
	r.sink.PublishSticky(topic, fields)
}
