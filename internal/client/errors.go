package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrAPIUnavailable is returned when the client has no server address.
var ErrAPIUnavailable = errors.New("loadboard API unavailable")

// RejectedError reports that the server refused a request.
type RejectedError struct {
	Status  int
	Path    string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %s rejected with status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("api %s rejected: %s", e.Path, e.Message)
}

// Rejected marks the error as a server refusal.
func (e *RejectedError) Rejected() bool { return true }

// IsAPIUnavailable reports whether err means the server could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
