package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoBackendAvailable means every candidate failed its health probe.
	ErrNoBackendAvailable = errors.New("no backend available")

	// ErrNotConnected means a call found no bound endpoint and resolution failed.
	ErrNotConnected = errors.New("not connected to a backend")

	// ErrTimeout means a probe or call exceeded its deadline.
	ErrTimeout = errors.New("backend request timed out")

	// ErrInvalidEndpoint means a manual rebind target failed its health probe.
	ErrInvalidEndpoint = errors.New("invalid backend endpoint")
)

// RemoteError is returned when the backend answers with a non-2xx status.
type RemoteError struct {
	Operation  string
	Message    string
	StatusCode int
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
