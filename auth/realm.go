package auth

import (
	"net/url"
	"strconv"
	"strings"
)

// Realm is the coarsest credential cache namespace: scheme, lowercased host,
// and an explicit port (defaulted per scheme when the URL omits one).
type Realm struct {
	Scheme string
	Host   string
	Port   int
}

// defaultPort returns the implicit port for scheme, or 0 if the scheme has no
// well-known default (callers must then treat the URL's explicit port, if
// any, as authoritative).
func defaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http":
		return 80
	case "https":
		return 443
	default:
		return 0
	}
}

// explicitPort resolves u's port, falling back to the scheme default.
func explicitPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return defaultPort(u.Scheme)
}

// RealmOf derives the Realm for u.
func RealmOf(u *url.URL) Realm {
	return Realm{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Port:   explicitPort(u),
	}
}

// String renders the realm the way a keyring service argument is built: the
// default port for the scheme is omitted, any non-standard port is included.
func (r Realm) String() string {
	if r.Port != 0 && r.Port != defaultPort(r.Scheme) {
		return r.Host + ":" + strconv.Itoa(r.Port)
	}
	return r.Host
}

// normalizeURL produces the cache-keying form of u: lowercased scheme and
// host, the scheme's default port dropped and any other port kept (so
// "https://h:443/" and "https://h/" key identically), userinfo and fragment
// stripped, path preserved verbatim.
func normalizeURL(u *url.URL) *url.URL {
	n := *u
	n.User = nil
	n.Host = strings.ToLower(u.Hostname())
	if port := explicitPort(u); port != 0 && port != defaultPort(u.Scheme) {
		n.Host = n.Host + ":" + strconv.Itoa(port)
	}
	n.Scheme = strings.ToLower(u.Scheme)
	n.Fragment = ""
	n.RawFragment = ""
	return &n
}

// pathPrefixMatch reports whether requestPath is equal to rootPath or begins
// with rootPath followed by a "/" boundary (segment-aligned prefix match).
func pathPrefixMatch(rootPath, requestPath string) bool {
	root := strings.TrimSuffix(rootPath, "/")
	if root == "" {
		return true
	}
	if requestPath == root {
		return true
	}
	return strings.HasPrefix(requestPath, root+"/")
}

// sameAuthority reports whether two URLs share scheme, host, and explicit
// port — the coarse match an Index's root_url must satisfy against a request
// URL before path-prefix matching is attempted.
func sameAuthority(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		explicitPort(a) == explicitPort(b)
}
