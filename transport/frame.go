// Package transport carries registry pushes across process boundaries:
// WebSocket sessions for remote listeners, a WebSocket subscriber client
// and an HTTP producer client.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

// ErrUnknownFrame is returned when a frame type cannot be interpreted.
var ErrUnknownFrame = errors.New("transport: unknown frame")

// Control frame types. Every other type is a field name.
const (
	TypeListen = "listen"
	TypeError  = "error"
)

// Frame is a single WebSocket message. Push frames carry the field name in
// Type and its value in the embedded Update. Listen frames are sent by
// clients to change their subscription.
type Frame struct {
	Type string `json:"type" cbor:"type"`
	subscriber.Update

	Mask      status.Mask `json:"mask,omitempty" cbor:"mask,omitempty"`
	Label     string      `json:"label,omitempty" cbor:"label,omitempty"`
	NotifyNow bool        `json:"notifyNow,omitempty" cbor:"notifyNow,omitempty"`
	Error     string      `json:"error,omitempty" cbor:"error,omitempty"`
}

// PushFrame wraps u in a push frame.
func PushFrame(u subscriber.Update) Frame {
	return Frame{Type: u.Field.String(), Update: u}
}

// ListenFrame builds a subscription change request.
func ListenFrame(mask status.Mask, label string, notifyNow bool) Frame {
	return Frame{Type: TypeListen, Mask: mask, Label: label, NotifyNow: notifyNow}
}

// ErrorFrame reports a server side failure to the client.
func ErrorFrame(err error) Frame {
	return Frame{Type: TypeError, Error: err.Error()}
}

// PushUpdate returns the update carried by a push frame.
func (f Frame) PushUpdate() (subscriber.Update, error) {
	field, err := status.ParseField(f.Type)
	if err != nil {
		return subscriber.Update{}, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
	}
	u := f.Update
	u.Field = field
	return u, nil
}

// Codec encodes frames for one WebSocket message type.
type Codec interface {
	Name() string
	MessageType() int
	Marshal(Frame) ([]byte, error)
	Unmarshal([]byte, *Frame) error
}

var (
	// JSON sends frames as text messages.
	JSON Codec = jsonCodec{}

	// CBOR sends frames as binary messages.
	CBOR Codec = cborCodec{}
)

// CodecByName resolves "json" or "cbor". An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("transport: unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string     { return "json" }
func (jsonCodec) MessageType() int { return websocket.TextMessage }

func (jsonCodec) Marshal(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (jsonCodec) Unmarshal(data []byte, f *Frame) error {
	return json.Unmarshal(data, f)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor encoder: %v", err))
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("transport: cbor decoder: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Name() string     { return "cbor" }
func (cborCodec) MessageType() int { return websocket.BinaryMessage }

func (cborCodec) Marshal(f Frame) ([]byte, error) {
	return cborEnc.Marshal(f)
}

func (cborCodec) Unmarshal(data []byte, f *Frame) error {
	return cborDec.Unmarshal(data, f)
}
