package stream

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned to Connect callers whose pending attempt was
// abandoned by Disconnect or Configure.
var ErrDisconnected = errors.New("stream session disconnected")

// ConfigurationError is returned when an operation needs setup that has not
// happened yet, or when the supplied configuration is unusable.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// BrokerError wraps a transport failure reported by the MQTT client.
type BrokerError struct {
	Op     string
	Broker string
	Err    error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s: %s: %v", e.Broker, e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}
