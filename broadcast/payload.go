package broadcast

import "github.com/hedeqiang/telreg/status"

// Payload keys.
const (
	KeyState          = "state"
	KeyASU            = "asu"
	KeyIncomingNumber = "incoming_number"
	KeyNetworkUnavail = "networkUnvailable"
	KeyReason         = "reason"
	KeyAPN            = "apn"
	KeyIface          = "iface"
)

// ServiceState flattens a service state.
func ServiceState(s status.ServiceState) Fields {
	return Fields{
		KeyState:               int(s.State),
		"roaming":              s.Roaming,
		"operator-alpha-long":  s.OperatorAlphaLong,
		"operator-alpha-short": s.OperatorAlphaShort,
		"operator-numeric":     s.OperatorNumeric,
		"manual":               s.ManualSelection,
		"radioTechnology":      s.RadioTechnology,
		"cssIndicator":         s.CSSIndicator,
		"networkId":            s.NetworkID,
		"systemId":             s.SystemID,
		"extendedCdmaRoaming":  s.ExtendedCdmaRoaming,
	}
}

// SignalStrength carries the signal strength in ASU.
func SignalStrength(asu int) Fields {
	return Fields{KeyASU: asu}
}

// PhoneState carries the textual call state and the incoming number.
func PhoneState(state status.CallState, incomingNumber string) Fields {
	return Fields{
		KeyState:          state.String(),
		KeyIncomingNumber: incomingNumber,
	}
}

// DataConnectionState describes a data connection change. The
// unavailability flag is only present when data is not possible and the
// reason only when one was given.
func DataConnectionState(dc status.DataConnection) Fields {
	f := Fields{
		KeyState: dc.State.String(),
		KeyAPN:   dc.APN,
		KeyIface: dc.InterfaceName,
	}
	if !dc.Possible {
		f[KeyNetworkUnavail] = true
	}
	if dc.Reason != "" {
		f[KeyReason] = dc.Reason
	}
	return f
}

// DataConnectionFailed carries the failure reason.
func DataConnectionFailed(reason string) Fields {
	return Fields{KeyReason: reason}
}
