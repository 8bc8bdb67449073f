package stream

import "fmt"

// ConnState is the lifecycle state of a Session's subscription.
type ConnState int

const (
	// Unconfigured: Configure has not been called yet.
	Unconfigured ConnState = iota
	// Connecting: the transport is dialing or waiting for the subscription ack.
	Connecting
	// Subscribed: the subscription has been acknowledged.
	Subscribed
	// Streaming: at least one sample arrived on the subscription.
	Streaming
	// Disconnected: the transport was torn down by Disconnect.
	Disconnected
	// Errored: the transport failed; Configure must be called again.
	Errored
)

func (s ConnState) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets the state render as its name in JSON.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *ConnState) UnmarshalText(b []byte) error {
	for st := Unconfigured; st <= Errored; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}
