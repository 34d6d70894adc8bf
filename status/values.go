package status

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// CallState is the voice call state.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallOffhook
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "IDLE"
	case CallRinging:
		return "RINGING"
	case CallOffhook:
		return "OFFHOOK"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// ParseCallState accepts the textual form of a call state.
func ParseCallState(s string) (CallState, error) {
	switch strings.ToUpper(s) {
	case "IDLE":
		return CallIdle, nil
	case "RINGING":
		return CallRinging, nil
	case "OFFHOOK":
		return CallOffhook, nil
	}
	return 0, fmt.Errorf("status: unknown call state %q", s)
}

// DataState is the state of the packet data connection.
type DataState int

const (
	DataDisconnected DataState = iota
	DataConnecting
	DataConnected
	DataSuspended
)

func (s DataState) String() string {
	switch s {
	case DataDisconnected:
		return "DISCONNECTED"
	case DataConnecting:
		return "CONNECTING"
	case DataConnected:
		return "CONNECTED"
	case DataSuspended:
		return "SUSPENDED"
	default:
		return fmt.Sprintf("DataState(%d)", int(s))
	}
}

// ParseDataState accepts the textual form of a data state.
func ParseDataState(s string) (DataState, error) {
	switch strings.ToUpper(s) {
	case "DISCONNECTED":
		return DataDisconnected, nil
	case "CONNECTING":
		return DataConnecting, nil
	case "CONNECTED":
		return DataConnected, nil
	case "SUSPENDED":
		return DataSuspended, nil
	}
	return 0, fmt.Errorf("status: unknown data state %q", s)
}

// DataActivity is the direction of current data traffic.
type DataActivity int

const (
	DataActivityNone  DataActivity = 0x0
	DataActivityIn    DataActivity = 0x1
	DataActivityOut   DataActivity = 0x2
	DataActivityInOut DataActivity = DataActivityIn | DataActivityOut
)

func (a DataActivity) String() string {
	switch a {
	case DataActivityNone:
		return "NONE"
	case DataActivityIn:
		return "IN"
	case DataActivityOut:
		return "OUT"
	case DataActivityInOut:
		return "INOUT"
	default:
		return fmt.Sprintf("DataActivity(%d)", int(a))
	}
}

// ParseDataActivity accepts the textual form of a data activity.
func ParseDataActivity(s string) (DataActivity, error) {
	switch strings.ToUpper(s) {
	case "NONE", "":
		return DataActivityNone, nil
	case "IN":
		return DataActivityIn, nil
	case "OUT":
		return DataActivityOut, nil
	case "INOUT":
		return DataActivityInOut, nil
	}
	return 0, fmt.Errorf("status: unknown data activity %q", s)
}

// RegState is the registration state carried in ServiceState.
type RegState int

const (
	InService RegState = iota
	OutOfService
	EmergencyOnly
	PowerOff
)

func (s RegState) String() string {
	switch s {
	case InService:
		return "IN_SERVICE"
	case OutOfService:
		return "OUT_OF_SERVICE"
	case EmergencyOnly:
		return "EMERGENCY_ONLY"
	case PowerOff:
		return "POWER_OFF"
	default:
		return fmt.Sprintf("RegState(%d)", int(s))
	}
}

// ServiceState describes network registration. It is a plain value, so
// every copy handed to a listener is independent of the snapshot.
type ServiceState struct {
	State               RegState `json:"state" cbor:"state" yaml:"state"`
	Roaming             bool     `json:"roaming" cbor:"roaming" yaml:"roaming"`
	OperatorAlphaLong   string   `json:"operatorAlphaLong,omitempty" cbor:"operatorAlphaLong,omitempty" yaml:"operatorAlphaLong,omitempty"`
	OperatorAlphaShort  string   `json:"operatorAlphaShort,omitempty" cbor:"operatorAlphaShort,omitempty" yaml:"operatorAlphaShort,omitempty"`
	OperatorNumeric     string   `json:"operatorNumeric,omitempty" cbor:"operatorNumeric,omitempty" yaml:"operatorNumeric,omitempty"`
	ManualSelection     bool     `json:"manual" cbor:"manual" yaml:"manual"`
	RadioTechnology     int      `json:"radioTechnology" cbor:"radioTechnology" yaml:"radioTechnology"`
	CSSIndicator        bool     `json:"cssIndicator" cbor:"cssIndicator" yaml:"cssIndicator"`
	NetworkID           int      `json:"networkId" cbor:"networkId" yaml:"networkId"`
	SystemID            int      `json:"systemId" cbor:"systemId" yaml:"systemId"`
	ExtendedCdmaRoaming int      `json:"extendedCdmaRoaming" cbor:"extendedCdmaRoaming" yaml:"extendedCdmaRoaming"`
}

// DefaultServiceState is the state before any registration is reported.
func DefaultServiceState() ServiceState {
	return ServiceState{State: OutOfService}
}

func (s ServiceState) String() string {
	return fmt.Sprintf("%s operator=%q/%q/%q roaming=%t manual=%t radioTechnology=%d css=%t sid=%d nid=%d eri=%d",
		s.State, s.OperatorAlphaLong, s.OperatorAlphaShort, s.OperatorNumeric,
		s.Roaming, s.ManualSelection, s.RadioTechnology, s.CSSIndicator,
		s.SystemID, s.NetworkID, s.ExtendedCdmaRoaming)
}

// CellLocation is an opaque cell location blob, e.g. {"lac": 1, "cid": 2}
// for GSM or base station coordinates for CDMA.
type CellLocation map[string]int

// Clone returns an independent copy. A nil location clones to an empty one.
func (c CellLocation) Clone() CellLocation {
	out := make(CellLocation, len(c))
	maps.Copy(out, c)
	return out
}

func (c CellLocation) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%d", k, c[k])
	}
	b.WriteByte('}')
	return b.String()
}
