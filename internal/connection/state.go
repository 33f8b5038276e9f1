package connection

// State is the lifecycle state of a Connection.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EventKind distinguishes the events delivered on Connection.Events.
type EventKind int

const (
	EventState EventKind = iota
	EventMessage
)

// Event is either a state transition or an inbound chat message.
type Event struct {
	Kind EventKind
	// State is set for EventState.
	State State
	// Content is set for EventMessage.
	Content string
}
