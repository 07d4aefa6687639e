// Package providers holds the three external credential sources consulted
// by the auth middleware: netrc, OS keyring, and declarative known-URL
// rules.
package providers

import (
	"net/url"
	"sync"

	"github.com/bgentry/go-netrc/netrc"
)

// NetrcMode selects how the netrc provider initializes.
type NetrcMode int

const (
	// NetrcAutomatic parses the default netrc location ($NETRC or
	// ~/.netrc) lazily, on first lookup.
	NetrcAutomatic NetrcMode = iota
	// NetrcEnabled parses an explicitly configured path, lazily.
	NetrcEnabled
	// NetrcDisabled never consults netrc.
	NetrcDisabled
)

// Netrc is a lazily-initialized netrc-backed credential source. Parsing
// happens at most once per process, guarded by sync.Once so concurrent
// first lookups are safe, matching the "mutex-guarded option filled on
// first access" pattern for environments without a built-in lazy-init
// primitive.
type Netrc struct {
	mode NetrcMode
	path string

	once   sync.Once
	parsed *netrc.Netrc // nil if parsing failed or disabled
	onError func(error)
}

// NewNetrc constructs a Netrc provider. path is ignored when mode is
// NetrcAutomatic (the default location is resolved at parse time) or
// NetrcDisabled. onError, if non-nil, receives parse failures; a parse
// error is never fatal, it simply disables the provider (§7).
func NewNetrc(mode NetrcMode, path string, onError func(error)) *Netrc {
	return &Netrc{mode: mode, path: path, onError: onError}
}

func (n *Netrc) ensureParsed() {
	n.once.Do(func() {
		if n.mode == NetrcDisabled {
			return
		}
		path := n.path
		if n.mode == NetrcAutomatic {
			resolved, err := defaultNetrcPath()
			if err != nil {
				if n.onError != nil {
					n.onError(err)
				}
				return
			}
			path = resolved
		}
		parsed, err := netrc.ParseFile(path)
		if err != nil {
			if n.onError != nil {
				n.onError(err)
			}
			return
		}
		n.parsed = parsed
	})
}

// Lookup resolves credentials for u's host. If username is non-nil, the
// netrc machine's login must equal it; otherwise the machine entry (or the
// netrc "default" catch-all, which only applies when no specific machine
// matched) is used as-is.
func (n *Netrc) Lookup(u *url.URL, username *string) (user, password string, ok bool) {
	n.ensureParsed()
	if n.parsed == nil {
		return "", "", false
	}
	machine := n.parsed.FindMachine(u.Hostname())
	if machine == nil {
		return "", "", false
	}
	if username != nil && machine.Login != *username {
		return "", "", false
	}
	return machine.Login, machine.Password, true
}
