package agoda

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AuthReason distinguishes the ways a login attempt can fail.
type AuthReason int

const (
	AuthBadCredentials AuthReason = iota
	AuthChallenge
	AuthTimeout
)

func (r AuthReason) String() string {
	switch r {
	case AuthBadCredentials:
		return "bad credentials"
	case AuthChallenge:
		return "challenge"
	case AuthTimeout:
		return "timeout"
	}
	return "unknown"
}

// AuthError is fatal to the run unless unauthenticated access is allowed.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (err *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%v): %v", err.Reason, err.Message)
}

// TransientError marks a failure worth retrying: timeouts, flaky network,
// temporary block pages.
type TransientError struct {
	Op  string
	Err error
}

func (err *TransientError) Error() string {
	return fmt.Sprintf("%v: transient error: %v", err.Op, err.Err)
}

func (err *TransientError) Unwrap() error { return err.Err }

// StructuralError means the page no longer matches the extraction schema:
// a layout change, a blocked page, or a missing section. Fatal for the
// current page, never retried.
type StructuralError struct {
	Page   string
	Detail string
}

func (err *StructuralError) Error() string {
	return fmt.Sprintf("%v: page structure not recognized: %v", err.Page, err.Detail)
}

// ConfigError is a startup-time failure; no partial run is attempted.
type ConfigError struct {
	Field   string
	Message string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("config %v: %v", err.Field, err.Message)
}

// EndOfPagination is returned by navigators when there is no next page.
// Re-invoking NextPage on a terminal state returns it again, not an error.
var EndOfPagination = errors.New("end of pagination")

// IsTransient reports whether err should be retried. Classified errors take
// precedence; otherwise timeouts from the network or the context deadline
// count as transient. Authentication, structural and config errors never do.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var auth *AuthError
	var structural *StructuralError
	var config *ConfigError
	if errors.As(err, &auth) || errors.As(err, &structural) || errors.As(err, &config) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
