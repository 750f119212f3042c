package client

// ConnState is the transport-level state owned by Connection.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is the session-level state. Authenticated implies Connected.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Connected reports whether a socket is open in this state.
func (s State) Connected() bool {
	return s >= StateConnected
}

// Authenticated reports whether the server accepted our login.
func (s State) Authenticated() bool {
	return s == StateAuthenticated
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
