package status

// DataConnection groups the values reported with a data connection change.
type DataConnection struct {
	State         DataState `json:"state" yaml:"state"`
	Possible      bool      `json:"possible" yaml:"possible"`
	Reason        string    `json:"reason" yaml:"reason"`
	APN           string    `json:"apn" yaml:"apn"`
	InterfaceName string    `json:"iface" yaml:"iface"`
}

// Snapshot is the last known value of every tracked field.
// It is not synchronized; the owner guards it.
type Snapshot struct {
	CallState          CallState      `json:"callState" yaml:"callState"`
	CallIncomingNumber string         `json:"callIncomingNumber" yaml:"callIncomingNumber"`
	ServiceState       ServiceState   `json:"serviceState" yaml:"serviceState"`
	SignalStrength     int            `json:"signalStrength" yaml:"signalStrength"`
	MessageWaiting     bool           `json:"messageWaiting" yaml:"messageWaiting"`
	CallForwarding     bool           `json:"callForwarding" yaml:"callForwarding"`
	DataActivity       DataActivity   `json:"dataActivity" yaml:"dataActivity"`
	DataConnection     DataConnection `json:"dataConnection" yaml:"dataConnection"`
	DataFailReason     string         `json:"dataConnectionFailReason" yaml:"dataConnectionFailReason"`
	CellLocation       CellLocation   `json:"cellLocation" yaml:"cellLocation"`
}

// NewSnapshot returns the snapshot in effect before any update arrives.
func NewSnapshot() Snapshot {
	return Snapshot{
		CallState:      CallIdle,
		ServiceState:   DefaultServiceState(),
		SignalStrength: -1,
		DataActivity:   DataActivityNone,
		DataConnection: DataConnection{State: DataDisconnected},
		CellLocation:   CellLocation{},
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.CellLocation = s.CellLocation.Clone()
	return s
}
