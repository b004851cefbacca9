package types

import "fmt"

// StateKind enumerates the connection state variants
type StateKind int

const (
	StateDisconnected StateKind = iota
	StateConnecting
	StateConnected
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ConnectionState is the tagged connection state. Cause is optional for
// StateDisconnected, always set for StateError and nil otherwise.
type ConnectionState struct {
	Kind  StateKind
	Cause error
}

// Disconnected returns a disconnected state with an optional cause.
func Disconnected(cause error) ConnectionState {
	return ConnectionState{Kind: StateDisconnected, Cause: cause}
}

// Connecting returns the connecting state.
func Connecting() ConnectionState {
	return ConnectionState{Kind: StateConnecting}
}

// Connected returns the connected state.
func Connected() ConnectionState {
	return ConnectionState{Kind: StateConnected}
}

// Failed returns an error state carrying cause.
func Failed(cause error) ConnectionState {
	if cause == nil {
		cause = fmt.Errorf("unknown connection failure")
	}
	return ConnectionState{Kind: StateError, Cause: cause}
}

func (s ConnectionState) String() string {
	if s.Cause != nil {
		return fmt.Sprintf("%s: %v", s.Kind, s.Cause)
	}
	return s.Kind.String()
}
