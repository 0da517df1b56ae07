package provider

import (
	"errors"
	"fmt"
)

// Valid TCP port range for remote servers (registered/dynamic ports only).
const (
	MinPort = 1024
	MaxPort = 65535
)

var (
	ErrClosed      = errors.New("provider: closed")
	ErrInvalidPort = fmt.Errorf("provider: port must be within [%d, %d]", MinPort, MaxPort)
	ErrNoServers   = errors.New("provider: empty server list")
)

// ConnectivityError reports that a provider could not be set up: a bad port, an empty or
// unresolvable server list, or no reachable server.
type ConnectivityError struct {
	Op   string // "validate", "resolve" or "ping"
	Addr string
	Err  error
}

func (e *ConnectivityError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connect (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connect (%s) %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidatePort rejects ports outside [MinPort, MaxPort] before any connection attempt.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return &ConnectivityError{Op: "validate", Addr: fmt.Sprintf("port %d", port), Err: ErrInvalidPort}
	}
	return nil
}
