// Package status defines the tracked telephony status fields, the interest
// mask used by subscribers and the snapshot of last known values.
package status

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is a single independently tracked status dimension.
type Field uint32

// Field bits. The values match the legacy listener flags so masks stay
// interchangeable with older clients.
const (
	ServiceStateField        Field = 0x01
	SignalStrengthField      Field = 0x02
	MessageWaitingField      Field = 0x04
	CallForwardingField      Field = 0x08
	CellLocationField        Field = 0x10
	CallStateField           Field = 0x20
	DataConnectionStateField Field = 0x40
	DataActivityField        Field = 0x80
)

// fieldOrder is the order used when replaying a snapshot.
var fieldOrder = []Field{
	ServiceStateField,
	SignalStrengthField,
	MessageWaitingField,
	CallForwardingField,
	CellLocationField,
	CallStateField,
	DataConnectionStateField,
	DataActivityField,
}

var fieldNames = map[Field]string{
	ServiceStateField:        "service_state",
	SignalStrengthField:      "signal_strength",
	MessageWaitingField:      "message_waiting",
	CallForwardingField:      "call_forwarding",
	CellLocationField:        "cell_location",
	CallStateField:           "call_state",
	DataConnectionStateField: "data_connection",
	DataActivityField:        "data_activity",
}

// AllFields returns every field in replay order.
func AllFields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// String returns the snake_case name of the field.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(0x%x)", uint32(f))
}

// ParseField resolves a field from its name.
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range fieldNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("status: unknown field %q", name)
}

// Mask is a set of fields a subscriber is interested in.
type Mask uint32

// AllMask selects every field.
var AllMask = MaskOf(fieldOrder...)

// MaskOf builds a mask from fields.
func MaskOf(fields ...Field) Mask {
	var m Mask
	for _, f := range fields {
		m |= Mask(f)
	}
	return m
}

// Has reports whether f is selected.
func (m Mask) Has(f Field) bool {
	return m&Mask(f) != 0
}

// Added returns the bits present in m but not in old.
func (m Mask) Added(old Mask) Mask {
	return m &^ old
}

// Empty reports whether no field is selected.
func (m Mask) Empty() bool {
	return m == 0
}

// Location reports whether m selects a location-sensitive field.
func (m Mask) Location() bool {
	return m.Has(CellLocationField)
}

// Fields returns the selected fields in replay order.
func (m Mask) Fields() []Field {
	var out []Field
	for _, f := range fieldOrder {
		if m.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// String formats the mask the way dumps print it, e.g. "0x21".
func (m Mask) String() string {
	return "0x" + strconv.FormatUint(uint64(m), 16)
}

// Names returns the field names selected by m.
func (m Mask) Names() []string {
	fields := m.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return names
}

// ParseMask accepts either a comma separated list of field names
// ("call_state,signal_strength"), the word "all", or a numeric mask
// ("0x21", "33").
func ParseMask(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.EqualFold(s, "all") {
		return AllMask, nil
	}
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		m := Mask(n)
		if extra := m &^ AllMask; extra != 0 {
			return 0, fmt.Errorf("status: mask %s selects unknown fields %s", m, extra)
		}
		return m, nil
	}

	var m Mask
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseField(part)
		if err != nil {
			return 0, err
		}
		m |= Mask(f)
	}
	return m, nil
}
