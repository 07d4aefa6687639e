package auth

import (
	"errors"
	"fmt"
	"net/url"
)

// Sentinel error kinds surfaced to callers. These are middleware-level
// decisions, distinct from transport errors returned unchanged from the
// wrapped RoundTripper.
var (
	// ErrMissingCredentials: the policy or flags forbid an unauthenticated
	// attempt and no credentials could be discovered.
	ErrMissingCredentials = errors.New("idxauth: missing credentials")
	// ErrMissingPassword: policy is Always, a username was known, but no
	// password was found.
	ErrMissingPassword = errors.New("idxauth: missing password")
	// ErrNotCloneable: a retry was required but the request body could not
	// be duplicated.
	ErrNotCloneable = errors.New("idxauth: request body not cloneable")
)

// RequestError wraps a sentinel error with the redacted URL it concerns, so
// callers get useful diagnostics without leaking secrets.
type RequestError struct {
	Err error
	URL *url.URL
}

func (e *RequestError) Error() string {
	if e.URL == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), RedactedURL(e.URL, false))
}

func (e *RequestError) Unwrap() error { return e.Err }

func missingCredentials(u *url.URL) error { return &RequestError{Err: ErrMissingCredentials, URL: u} }
func missingPassword(u *url.URL) error    { return &RequestError{Err: ErrMissingPassword, URL: u} }
func notCloneable(u *url.URL) error       { return &RequestError{Err: ErrNotCloneable, URL: u} }

// RedactedURL renders u with its password always stripped and, when
// fullRedact is true, the username stripped as well. Used in error messages
// and log lines per the contract that secrets never reach diagnostic
// output.
func RedactedURL(u *url.URL, fullRedact bool) string {
	if u == nil {
		return ""
	}
	redacted := *u
	if redacted.User != nil {
		username := redacted.User.Username()
		if fullRedact || username == "" {
			redacted.User = nil
		} else {
			redacted.User = url.User(username)
		}
	}
	return redacted.String()
}
