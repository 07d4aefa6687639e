package auth

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/l0p7/idxauth-fetch/auth/providers"
)

// Config configures a Transport. All fields are optional; a zero Config
// yields a middleware that attaches request-provided credentials and
// caches them, but never consults netrc, keyring, or known-URL providers.
type Config struct {
	Netrc             *providers.Netrc
	Keyring           providers.Keyring
	Known             *providers.KnownProviders
	Cache             *Cache
	Registry          *Registry
	OnlyAuthenticated bool
	Logger            *slog.Logger
	Metrics           Metrics
}

// Transport implements http.RoundTripper, wrapping inner with the
// credential-discovery state machine described in §4.5. Construct via
// NewTransport.
type Transport struct {
	inner             http.RoundTripper
	netrc             *providers.Netrc
	keyring           providers.Keyring
	known             *providers.KnownProviders
	cache             *Cache
	registry          atomic.Pointer[Registry]
	onlyAuthenticated bool
	logger            *slog.Logger
	metrics           Metrics
}

// NewTransport builds a Transport. inner defaults to http.DefaultTransport
// when nil; cfg.Cache defaults to a fresh, empty Cache when nil.
func NewTransport(inner http.RoundTripper, cfg Config) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	t := &Transport{
		inner:             inner,
		netrc:             cfg.Netrc,
		keyring:           cfg.Keyring,
		known:             cfg.Known,
		cache:             cache,
		onlyAuthenticated: cfg.OnlyAuthenticated,
		logger:            cfg.Logger,
		metrics:           metrics,
	}
	t.registry.Store(cfg.Registry)
	return t
}

// SetRegistry swaps the index registry consulted for auth-policy and
// index-scoped cache lookups. Safe for concurrent use alongside in-flight
// RoundTrip calls; it never evicts already-cached credentials, matching the
// cache's no-eviction contract.
func (t *Transport) SetRegistry(reg *Registry) {
	t.registry.Store(reg)
}

// NewClient is a convenience wrapper returning an *http.Client using this
// Transport, the idiom used throughout the pack's registry-auth examples
// (e.g. go-containerregistry's authenticated RoundTripper construction).
func NewClient(inner http.RoundTripper, cfg Config) *http.Client {
	return &http.Client{Transport: NewTransport(inner, cfg)}
}

// isSuccess reports whether status is neither a client nor a server error.
func isSuccess(status int) bool { return status < 400 }

// isAuthFailure reports whether status is one of the fixed triplet that
// triggers credential discovery.
func isAuthFailure(status int) bool { return status == 401 || status == 403 || status == 404 }

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	idx, hasIndex := t.registry.Load().Match(req.URL)
	policy := AuthPolicyAuto
	if hasIndex {
		policy = idx.AuthPolicy
	}

	if policy == AuthPolicyNever {
		t.metrics.ObserveRequest("none", "passthrough")
		return t.inner.RoundTrip(req)
	}

	realm := RealmOf(req.URL)
	var fkey FetchKey
	if hasIndex {
		fkey = fetchKeyForIndex(idx)
	} else {
		fkey = fetchKeyForRealm(realm)
	}

	creds, attached := classifyRequest(req)
	switch {
	case attached && creds.Complete():
		t.metrics.ObserveRequest("full", "start")
		return t.handleFull(req, creds)
	case attached:
		t.metrics.ObserveRequest("user", "start")
		return t.handleUserOnly(req, creds, realm, hasIndex, idx, fkey, policy)
	default:
		t.metrics.ObserveRequest("none", "start")
		return t.handleNone(req, realm, hasIndex, idx, fkey, policy)
	}
}

// handleFull is R-FULL: request already carries a complete credential.
// Request-attached credentials always override cache and providers.
func (t *Transport) handleFull(req *http.Request, creds Credentials) (*http.Response, error) {
	creds.Apply(req)
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if isSuccess(resp.StatusCode) {
		t.cache.Insert(req.URL, creds)
	}
	return resp, nil
}

// handleUserOnly is R-USER: request carries a username but no password.
func (t *Transport) handleUserOnly(req *http.Request, creds Credentials, realm Realm, hasIndex bool, idx Index, fkey FetchKey, policy AuthPolicy) (*http.Response, error) {
	want := concreteUsername(creds.Username)

	discovered, found, fromCache, err := t.resolve(req.URL, realm, want, &creds.Username, hasIndex, idx, fkey)
	if err != nil {
		return nil, err
	}

	final := creds
	if found && discovered.HasPassword() {
		final = final.WithPassword(*discovered.Password)
	}

	if failErr := t.requireDiscovery(policy, final, final.HasPassword(), req.URL); failErr != nil {
		return nil, failErr
	}

	resp, err := t.inner.RoundTrip(withApplied(req, final))
	if err != nil {
		return nil, err
	}
	if isSuccess(resp.StatusCode) && final.HasPassword() && !fromCache {
		t.cache.Insert(req.URL, final)
	}
	return resp, nil
}

// resolve implements the shared cache-then-fetch-then-realm-fallback lookup
// used by both R-USER and the discovery phase of R-NONE.
func (t *Transport) resolve(u *url.URL, realm Realm, want username, forUsername *string, hasIndex bool, idx Index, fkey FetchKey) (Credentials, bool, bool, error) {
	var cached Credentials
	var found bool
	if hasIndex {
		cached, found = t.cache.GetURL(idx.URL, want)
	} else {
		cached, found = t.cache.GetRealm(realm, want)
	}
	t.metrics.ObserveCacheLookup("index_or_realm", found)
	if found {
		return cached, true, true, nil
	}

	cached, found = t.cache.GetURL(u, want)
	t.metrics.ObserveCacheLookup("url", found)
	if found {
		return cached, true, true, nil
	}

	fetched, ferr := t.fetchCredentials(u, realm, fkey, forUsername, hasIndex, idx)
	if ferr != nil {
		return Credentials{}, false, false, ferr
	}
	if fetched != nil {
		return *fetched, true, false, nil
	}

	if hasIndex {
		cached, found = t.cache.GetRealm(realm, want)
		t.metrics.ObserveCacheLookup("realm_fallback", found)
		if found {
			return cached, true, true, nil
		}
	}
	return Credentials{}, false, false, nil
}

// requireDiscovery enforces that AuthPolicyAlways and the global
// onlyAuthenticated flag both demand a successful discovery before any
// request is sent.
func (t *Transport) requireDiscovery(policy AuthPolicy, discovered Credentials, hasPassword bool, u *url.URL) error {
	if policy != AuthPolicyAlways && !t.onlyAuthenticated {
		return nil
	}
	if hasPassword {
		return nil
	}
	if policy == AuthPolicyAlways && discovered.HasUsername() {
		return missingPassword(u)
	}
	return missingCredentials(u)
}

// handleNone is R-NONE: the request carries no credentials at all.
func (t *Transport) handleNone(req *http.Request, realm Realm, hasIndex bool, idx Index, fkey FetchKey, policy AuthPolicy) (*http.Response, error) {
	cached, found := t.cache.GetURL(req.URL, missingUsername)
	t.metrics.ObserveCacheLookup("url", found)
	if found && cached.HasPassword() {
		resp, err := t.inner.RoundTrip(withApplied(req, cached))
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	var partialUsername *string
	if found && cached.HasUsername() {
		u := cached.Username
		partialUsername = &u
	}

	probesAllowed := policy != AuthPolicyAlways && !t.onlyAuthenticated
	var probeResp *http.Response
	if probesAllowed {
		probeReq, cerr := cloneForAttempt(req)
		if cerr != nil {
			return nil, cerr
		}
		if partialUsername != nil {
			NewUsernameOnly(*partialUsername).Apply(probeReq)
		}
		resp, err := t.inner.RoundTrip(probeReq)
		if err != nil {
			return nil, err
		}
		if !isAuthFailure(resp.StatusCode) {
			return resp, nil
		}
		probeResp = resp
	}

	want := missingUsername
	if partialUsername != nil {
		want = concreteUsername(*partialUsername)
	}
	discovered, dfound, fromCache, err := t.resolve(req.URL, realm, want, partialUsername, hasIndex, idx, fkey)
	if err != nil {
		return nil, err
	}

	if failErr := t.requireDiscovery(policy, discovered, dfound && discovered.HasPassword(), req.URL); failErr != nil {
		return nil, failErr
	}

	if dfound && discovered.HasPassword() {
		retryReq, cerr := cloneForAttempt(req)
		if cerr != nil {
			return nil, cerr
		}
		resp, err := t.inner.RoundTrip(withApplied(retryReq, discovered))
		if err != nil {
			return nil, err
		}
		if isSuccess(resp.StatusCode) && !fromCache {
			t.cache.Insert(req.URL, discovered)
		}
		return resp, nil
	}

	if probeResp != nil && partialUsername == nil && dfound && discovered.HasUsername() {
		retryReq, cerr := cloneForAttempt(req)
		if cerr != nil {
			return nil, cerr
		}
		NewUsernameOnly(discovered.Username).Apply(retryReq)
		resp, err := t.inner.RoundTrip(retryReq)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}

	if probeResp != nil {
		return probeResp, nil
	}
	return nil, missingCredentials(req.URL)
}

// fetchCredentials runs the single-flight-coordinated provider chain for
// (fkey, forUsername), serving a sticky cached result to late arrivals.
func (t *Transport) fetchCredentials(u *url.URL, realm Realm, fkey FetchKey, forUsername *string, hasIndex bool, idx Index) (*Credentials, error) {
	who := missingUsername
	if forUsername != nil {
		who = concreteUsername(*forUsername)
	}
	slot, elected := t.cache.fetches.register(fkey, who)
	if !elected {
		creds, found, err := slot.wait()
		t.metrics.ObserveFetch(false, found && err == nil)
		if err != nil || !found {
			return nil, err
		}
		return &creds, nil
	}

	creds, found, err := t.runProviders(u, realm, forUsername, hasIndex, idx)
	slot.publish(creds, found, err)
	t.metrics.ObserveFetch(true, found && err == nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &creds, nil
}

// runProviders consults known-URL rules, then netrc, then the keyring, in
// that fixed order, returning the first non-empty result.
func (t *Transport) runProviders(u *url.URL, realm Realm, forUsername *string, hasIndex bool, idx Index) (Credentials, bool, error) {
	if t.known != nil {
		if user, pass, ok := t.known.Lookup(u); ok {
			t.metrics.ObserveProvider("known", true)
			return NewCredentials(user, pass), true, nil
		}
	}
	if t.netrc != nil {
		if user, pass, ok := t.netrc.Lookup(u, forUsername); ok {
			t.metrics.ObserveProvider("netrc", true)
			return NewCredentials(user, pass), true, nil
		}
	}
	if t.keyring != nil {
		policyAlways := hasIndex && idx.AuthPolicy == AuthPolicyAlways
		if forUsername != nil || policyAlways {
			service := realm.String()
			if hasIndex {
				service = idx.URL.String()
			}
			entry, kfound, kerr := t.keyring.Fetch(service, forUsername)
			if kerr != nil {
				if t.logger != nil {
					t.logger.Error("keyring fetch failed", slog.String("service", service), slog.Any("error", kerr))
				}
				t.metrics.ObserveProvider("keyring", false)
				return Credentials{}, false, nil
			}
			if kfound {
				t.metrics.ObserveProvider("keyring", true)
				return NewCredentials(entry.Username, entry.Password), true, nil
			}
		}
	}
	t.metrics.ObserveProvider("none", false)
	return Credentials{}, false, nil
}

// withApplied returns req with creds applied; a small readability helper so
// call sites read as a single expression.
func withApplied(req *http.Request, creds Credentials) *http.Request {
	creds.Apply(req)
	return req
}

// cloneForAttempt duplicates req for a probe or retry, honoring the
// NotCloneable contract: a streaming body (no GetBody) must fail before any
// network attempt.
func cloneForAttempt(req *http.Request) (*http.Request, error) {
	if req.Body != nil && req.GetBody == nil {
		return nil, notCloneable(req.URL)
	}
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, notCloneable(req.URL)
		}
		clone.Body = body
	}
	return clone, nil
}
