// Package broadcast publishes sticky system-wide announcements for a subset
// of status fields. Publishing is fire-and-forget: sinks never report
// errors to the caller and never retry.
package broadcast

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("telreg/broadcast")

// Topics for the announcements published by the registry.
const (
	TopicServiceState         = "telreg.service_state"
	TopicSignalStrength       = "telreg.signal_strength"
	TopicPhoneState           = "telreg.phone_state"
	TopicDataConnectionState  = "telreg.any_data_state"
	TopicDataConnectionFailed = "telreg.data_connection_failed"
)

// Topics lists every topic in publication order.
func Topics() []string {
	return []string{
		TopicServiceState,
		TopicSignalStrength,
		TopicPhoneState,
		TopicDataConnectionState,
		TopicDataConnectionFailed,
	}
}

// Fields is the flattened key/value payload of an announcement.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Sink receives sticky announcements.
type Sink interface {
	// PublishSticky announces fields under topic. It must not block for
	// long and must swallow its own failures.
	PublishSticky(topic string, fields Fields)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(topic string, fields Fields)

// PublishSticky calls f.
func (f SinkFunc) PublishSticky(topic string, fields Fields) {
	f(topic, fields)
}

// Discard drops every announcement.
var Discard Sink = SinkFunc(func(string, Fields) {})

// Multi publishes to several sinks in order. A panicking sink does not
// prevent the others from being called.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// PublishSticky forwards to every sink.
func (m *Multi) PublishSticky(topic string, fields Fields) {
	m.mu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()

	for _, s := range sinks {
		publishSafe(s, topic, fields)
	}
}

func publishSafe(s Sink, topic string, fields Fields) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("sink panicked publishing %s: %v", topic, r)
		}
	}()
	s.PublishSticky(topic, fields)
}
