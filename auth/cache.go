package auth

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// username is the lookup/storage key component for credentials: either a
// concrete value (possibly empty string) or "missing", which is a distinct
// value that matches any concrete username during lookups.
type username struct {
	value   string
	present bool
}

func concreteUsername(v string) username { return username{value: v, present: true} }

// missingUsername is the distinguished "no username supplied" key.
var missingUsername = username{}

func (u username) String() string {
	if !u.present {
		return "\x00missing"
	}
	return u.value
}

// CacheEntry is a shared, ref-counted-by-pointer Credentials value: the same
// entry can be reachable from both url_map and realm_map without copying.
type CacheEntry = *Credentials

type urlEntry struct {
	scheme, host string
	port         int
	path         string
	byUsername   map[string]CacheEntry // keyed by username.String()
}

type realmEntry struct {
	byUsername map[string]CacheEntry
}

// Cache is the two-level credentials cache specified in §4.3: a URL-prefix
// map and a realm map, each additionally keyed by username. It is safe for
// concurrent use and entries are never evicted during the process lifetime.
type Cache struct {
	mu       sync.RWMutex
	urls     []*urlEntry // one per distinct normalized URL inserted
	realms   map[Realm]*realmEntry
	fetches  *fetchGroup
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{
		realms:  make(map[Realm]*realmEntry),
		fetches: newFetchGroup(),
	}
}

// GetURL performs the longest-prefix match described in §4.3: among stored
// URL entries sharing scheme+host+explicit-port with u, select the one
// whose path is the longest segment-aligned prefix of u's path, then look want
// up in that entry only (see lookupByUsername). Shorter-prefix entries are not
// consulted when the longest one has nothing for want.
func (c *Cache) GetURL(u *url.URL, want username) (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := normalizeURL(u)
	var best *urlEntry
	for _, e := range c.urls {
		if !strings.EqualFold(e.scheme, n.Scheme) || !strings.EqualFold(e.host, n.Host) {
			continue
		}
		if !pathPrefixMatch(e.path, n.Path) {
			continue
		}
		if best == nil || len(e.path) > len(best.path) {
			best = e
		}
	}
	if best == nil {
		return Credentials{}, false
	}
	return lookupByUsername(best.byUsername, want)
}

// GetRealm performs an exact realm-key match, then looks want up in that
// entry (see lookupByUsername).
func (c *Cache) GetRealm(r Realm, want username) (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	re, ok := c.realms[r]
	if !ok {
		return Credentials{}, false
	}
	return lookupByUsername(re.byUsername, want)
}

// lookupByUsername returns only an exact match for a concrete want; a
// missing-username entry never satisfies a concrete query. For a missing want
// it prefers the missing-username entry, else returns any concrete entry.
func lookupByUsername(byUsername map[string]CacheEntry, want username) (Credentials, bool) {
	if want.present {
		if e, ok := byUsername[want.String()]; ok {
			return *e, true
		}
		return Credentials{}, false
	}
	// Missing username: a concrete-username entry may be returned (the
	// invariant only forbids the reverse — a concrete query must never get
	// back a disagreeing concrete username).
	if e, ok := byUsername[missingUsername.String()]; ok {
		return *e, true
	}
	for key, e := range byUsername {
		if key == missingUsername.String() {
			continue
		}
		return *e, true
	}
	return Credentials{}, false
}

// Insert stores creds under u in the URL map, and — only if no realm entry
// exists yet for (Realm(u), creds' username) — also under the realm map.
func (c *Cache) Insert(u *url.URL, creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := normalizeURL(u)
	who := missingUsername
	if creds.HasUsername() {
		who = concreteUsername(creds.Username)
	}
	entry := new(Credentials)
	*entry = creds

	found := false
	for _, e := range c.urls {
		if strings.EqualFold(e.scheme, n.Scheme) && strings.EqualFold(e.host, n.Host) && e.path == n.Path {
			e.byUsername[who.String()] = entry
			found = true
			break
		}
	}
	if !found {
		c.urls = append(c.urls, &urlEntry{
			scheme:     n.Scheme,
			host:       n.Host,
			port:       explicitPort(n),
			path:       n.Path,
			byUsername: map[string]CacheEntry{who.String(): entry},
		})
	}

	realm := RealmOf(n)
	re, ok := c.realms[realm]
	if !ok {
		re = &realmEntry{byUsername: make(map[string]CacheEntry)}
		c.realms[realm] = re
	}
	if _, exists := re.byUsername[who.String()]; !exists {
		re.byUsername[who.String()] = entry
	}
}

// Seed is a caller-facing alias for Insert, used to pre-populate the cache
// (e.g. from configuration) before any request has been handled.
func (c *Cache) Seed(u *url.URL, creds Credentials) { c.Insert(u, creds) }

// debugURLCount reports the number of distinct normalized URLs with cache
// entries; exposed for tests asserting no spurious growth.
func (c *Cache) debugURLCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.urls)
}

// debugRealms returns the sorted set of realms known to the cache, for
// deterministic test assertions.
func (c *Cache) debugRealms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.realms))
	for r := range c.realms {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return out
}
