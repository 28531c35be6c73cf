package client

import "fmt"

// State is the connection lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "InvalidState"
	}
}

func (s State) validateTransitionTo(next State) error {
	switch s {
	case StateDisconnected:
		switch next {
		case StateConnecting, StateClosed:
			return nil
		}
	case StateConnecting:
		switch next {
		case StateConnected, StateDisconnected, StateClosed:
			return nil
		}
	case StateConnected:
		switch next {
		case StateDisconnected, StateClosed:
			return nil
		}
	case StateClosed:
		// terminal
	}
	return fmt.Errorf("invalid state transition %s -> %s", s, next)
}
