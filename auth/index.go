package auth

import (
	"fmt"
	"net/url"
)

// AuthPolicy governs whether unauthenticated attempts and credential
// discovery are permitted for requests matching an Index.
type AuthPolicy int

const (
	// AuthPolicyAuto is the standard behavior: probe unauthenticated, then
	// discover and retry on {401,403,404}.
	AuthPolicyAuto AuthPolicy = iota
	// AuthPolicyAlways never sends unauthenticated; a password is required
	// or the request fails.
	AuthPolicyAlways
	// AuthPolicyNever never attaches credentials and never consults any
	// provider; the request passes through unmodified.
	AuthPolicyNever
)

func (p AuthPolicy) String() string {
	switch p {
	case AuthPolicyAuto:
		return "auto"
	case AuthPolicyAlways:
		return "always"
	case AuthPolicyNever:
		return "never"
	default:
		return "unknown"
	}
}

// IndexSpec is the declarative form of an index, as it arrives from
// configuration.
type IndexSpec struct {
	URL        string
	RootURL    string
	AuthPolicy string // "auto" (default), "always", "never"
}

// Index is a compiled index registry entry. root_url's scheme/host/port must
// match url's (checked at compile time); root_url is the prefix used for URL
// matching.
type Index struct {
	URL        *url.URL
	RootURL    *url.URL
	AuthPolicy AuthPolicy
}

// compileAuthPolicy parses the declarative policy string.
func compileAuthPolicy(raw string) (AuthPolicy, error) {
	switch raw {
	case "", "auto":
		return AuthPolicyAuto, nil
	case "always":
		return AuthPolicyAlways, nil
	case "never":
		return AuthPolicyNever, nil
	default:
		return AuthPolicyAuto, fmt.Errorf("auth: unsupported auth policy %q", raw)
	}
}

// CompileIndex validates and compiles an IndexSpec. It enforces the
// invariant that root_url is a same-authority prefix of url.
func CompileIndex(spec IndexSpec) (Index, error) {
	u, err := url.Parse(spec.URL)
	if err != nil {
		return Index{}, fmt.Errorf("auth: index url %q: %w", spec.URL, err)
	}
	root, err := url.Parse(spec.RootURL)
	if err != nil {
		return Index{}, fmt.Errorf("auth: index root_url %q: %w", spec.RootURL, err)
	}
	if !sameAuthority(u, root) {
		return Index{}, fmt.Errorf("auth: index root_url %q is not same-authority as url %q", spec.RootURL, spec.URL)
	}
	if !pathPrefixMatch(root.Path, u.Path) {
		return Index{}, fmt.Errorf("auth: index root_url %q is not a path prefix of url %q", spec.RootURL, spec.URL)
	}
	policy, err := compileAuthPolicy(spec.AuthPolicy)
	if err != nil {
		return Index{}, err
	}
	return Index{URL: normalizeURL(u), RootURL: normalizeURL(root), AuthPolicy: policy}, nil
}

// Registry holds the compiled indexes and matches request URLs against
// them. Immutable after construction; WatchIndexes-style reload builds a new
// Registry and swaps it in atomically at the caller's level.
type Registry struct {
	indexes []Index
}

// NewRegistry compiles a Registry from specs, stopping at the first error.
func NewRegistry(specs []IndexSpec) (*Registry, error) {
	indexes := make([]Index, 0, len(specs))
	for _, spec := range specs {
		idx, err := CompileIndex(spec)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return &Registry{indexes: indexes}, nil
}

// Match returns the Index whose root_url is the longest segment-aligned
// prefix of u (same scheme+host+explicit port, path prefix match), or false
// if none matches. Mirrors the longest-prefix selection in Cache.GetURL so a
// realm-wide catch-all index and a scoped sub-path index can coexist without
// the catch-all shadowing the more specific one.
func (r *Registry) Match(u *url.URL) (Index, bool) {
	if r == nil {
		return Index{}, false
	}
	n := normalizeURL(u)
	var best *Index
	for i, idx := range r.indexes {
		if !sameAuthority(n, idx.RootURL) {
			continue
		}
		if !pathPrefixMatch(idx.RootURL.Path, n.Path) {
			continue
		}
		if best == nil || len(idx.RootURL.Path) > len(best.RootURL.Path) {
			best = &r.indexes[i]
		}
	}
	if best == nil {
		return Index{}, false
	}
	return *best, true
}

// FetchKey is the single-flight / provider-fetch deduplication key: either
// an index URL or, absent a matched index, a realm.
type FetchKey struct {
	indexURL string
	realm    Realm
	isIndex  bool
}

func fetchKeyForIndex(idx Index) FetchKey {
	return FetchKey{indexURL: idx.URL.String(), isIndex: true}
}

func fetchKeyForRealm(r Realm) FetchKey {
	return FetchKey{realm: r}
}

func (k FetchKey) String() string {
	if k.isIndex {
		return "index:" + k.indexURL
	}
	return "realm:" + k.realm.String()
}
