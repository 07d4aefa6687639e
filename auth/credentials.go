package auth

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// Credentials is HTTP Basic auth material. Username may be empty (but
// present) or entirely absent depending on how it was obtained; Password is
// nil when only a username is known.
type Credentials struct {
	Username string
	Password *string

	hasUsername bool
}

// NewCredentials builds a full username+password pair.
func NewCredentials(username, password string) Credentials {
	return Credentials{Username: username, Password: &password, hasUsername: true}
}

// NewUsernameOnly builds a credentials value carrying just a username.
func NewUsernameOnly(username string) Credentials {
	return Credentials{Username: username, hasUsername: true}
}

// HasUsername reports whether a username is present (possibly empty string).
func (c Credentials) HasUsername() bool { return c.hasUsername }

// HasPassword reports whether a password is present.
func (c Credentials) HasPassword() bool { return c.Password != nil }

// Complete reports whether both username and password are present (R-FULL
// material).
func (c Credentials) Complete() bool { return c.hasUsername && c.Password != nil }

// WithPassword returns a copy of c with password set, preserving username.
func (c Credentials) WithPassword(password string) Credentials {
	c.Password = &password
	return c
}

// header renders the Authorization: Basic value. A missing password encodes
// as empty string per spec.
func (c Credentials) header() string {
	password := ""
	if c.Password != nil {
		password = *c.Password
	}
	raw := c.Username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// Apply sets the Authorization header on req and clears any URL userinfo.
func (c Credentials) Apply(req *http.Request) {
	req.Header.Set("Authorization", c.header())
	if req.URL != nil {
		req.URL.User = nil
	}
}

// credentialsFromHeader extracts Basic-auth credentials from the request's
// existing Authorization header, if present and well-formed.
func credentialsFromHeader(req *http.Request) (Credentials, bool) {
	username, password, ok := req.BasicAuth()
	if !ok {
		return Credentials{}, false
	}
	// BasicAuth cannot distinguish "user:" (username only) from "user:pass"
	// with empty pass, so re-decode to recover that distinction.
	header := req.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return NewCredentials(username, password), true
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return NewCredentials(username, password), true
	}
	raw := string(decoded)
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return NewUsernameOnly(raw), true
	}
	if idx == len(raw)-1 {
		// "user:" with nothing after the colon: treat as username only, the
		// header did not actually carry a password value.
		return NewUsernameOnly(raw[:idx]), true
	}
	return NewCredentials(raw[:idx], raw[idx+1:]), true
}

// classifyRequest extracts any credentials already attached to req, from
// URL userinfo first and the Authorization header second, moving nothing
// off the request yet (the caller applies the final chosen credentials via
// Credentials.Apply, which clears userinfo at that point).
func classifyRequest(req *http.Request) (Credentials, bool) {
	if creds, ok := credentialsFromURL(req.URL); ok {
		return creds, true
	}
	return credentialsFromHeader(req)
}

// credentialsFromURL extracts userinfo credentials from u, if any. It does
// not mutate u.
func credentialsFromURL(u *url.URL) (Credentials, bool) {
	if u == nil || u.User == nil {
		return Credentials{}, false
	}
	username := u.User.Username()
	if password, ok := u.User.Password(); ok {
		return NewCredentials(username, password), true
	}
	return NewUsernameOnly(username), true
}
