package domain

import (
	"errors"
	"fmt"
)

// ErrorKind names the failure taxonomy used in run aggregation.
type ErrorKind string

const (
	KindAuth           ErrorKind = "authentication"
	KindProxyAuth      ErrorKind = "proxy_authentication"
	KindConnection     ErrorKind = "connection"
	KindSessionCorrupt ErrorKind = "session_corrupt"
	KindClassifier     ErrorKind = "classifier_unavailable"
	KindTokenizer      ErrorKind = "tokenizer_unavailable"
)

// ErrUnauthenticated is the reactive expiry signal: collaborators return it
// when the service answered with a 401/403-equivalent response.
var ErrUnauthenticated = errors.New("session rejected by service")

// ErrNoSession is returned by the session store when no usable record
// exists. Corrupted records are reported as absent through this error.
var ErrNoSession = errors.New("no session record")

// AuthError is fatal for its service: credentials were rejected after the
// login retry budget was exhausted. It aborts the run for that service.
type AuthError struct {
	ServiceID string
	Attempts  int
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s after %d attempts: %v", e.ServiceID, e.Attempts, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProxyAuthError reports rejected proxy credentials. It is a configuration
// error and is never retried.
type ProxyAuthError struct {
	Err error
}

func (e *ProxyAuthError) Error() string {
	return fmt.Sprintf("proxy authentication failed: %v", e.Err)
}

func (e *ProxyAuthError) Unwrap() error { return e.Err }

// ConnError is entity-scoped: a fetch exhausted its retries. The entity is
// recorded as failed and the run continues.
type ConnError struct {
	Locator  string
	Attempts int
	Err      error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection to %s failed after %d attempts: %v", e.Locator, e.Attempts, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// KindOf classifies an error into the aggregation taxonomy.
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	var proxyErr *ProxyAuthError
	var connErr *ConnError
	switch {
	case errors.As(err, &proxyErr):
		return KindProxyAuth
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &connErr):
		return KindConnection
	default:
		return KindConnection
	}
}
