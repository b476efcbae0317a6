package managesieve

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrHostResolution = errors.New("host resolution failed")
	ErrTimeout        = errors.New("no response from server")
	ErrClosed         = errors.New("connection closed")
)

// HostResolutionError is returned by Dial when the host name does not resolve.
type HostResolutionError struct {
	Host string
	Err  error
}

func (e *HostResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unknown host %q", e.Host)
	}
	return fmt.Sprintf("unknown host %q: %v", e.Host, e.Err)
}

func (e *HostResolutionError) Unwrap() error {
	return e.Err
}

func (e *HostResolutionError) Is(target error) bool {
	return target == ErrHostResolution
}

// ConnectionError reports an I/O failure on the stream. Op is one of
// "dial", "read", "write" or "close".
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("managesieve %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("managesieve %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned by GetResponse when the server sent nothing
// within the wait budget.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s within %s", ErrTimeout.Error(), e.Budget)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Timeout reports true so callers checking for net.Error semantics treat it
// like any other timeout. Temporary completes the net.Error interface.
func (e *TimeoutError) Timeout() bool   { return true }
func (e *TimeoutError) Temporary() bool { return true }
