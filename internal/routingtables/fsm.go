package routingtables

// FSMState is the BGP peering finite state machine. Only Established
// corresponds to usable route exchange; it is the sole state that maps to
// a view peer being Active.
type FSMState uint8

const (
	FSMUnknown FSMState = iota
	FSMIdle
	FSMConnect
	FSMActive
	FSMOpenSent
	FSMOpenConfirm
	FSMEstablished
)

func (s FSMState) String() string {
	switch s {
	case FSMUnknown:
		return "Unknown"
	case FSMIdle:
		return "Idle"
	case FSMConnect:
		return "Connect"
	case FSMActive:
		return "Active"
	case FSMOpenSent:
		return "OpenSent"
	case FSMOpenConfirm:
		return "OpenConfirm"
	case FSMEstablished:
		return "Established"
	default:
		return "Invalid"
	}
}

// CollectorState is the engine's derived summary of a collector, computed
// from its peers' states at the end of every promotion pass.
type CollectorState uint8

const (
	CollectorUnknown CollectorState = iota
	CollectorUp
	CollectorDown
)

func (s CollectorState) String() string {
	switch s {
	case CollectorUnknown:
		return "Unknown"
	case CollectorUp:
		return "Up"
	case CollectorDown:
		return "Down"
	default:
		return "Invalid"
	}
}
