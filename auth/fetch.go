package auth

import "sync"

// fetchResult is the sticky, once-published outcome of a provider chain run
// for a given (FetchKey, username).
type fetchResult struct {
	ch    chan struct{}
	creds Credentials
	found bool
	err   error
}

// fetchGroup implements the sticky single-flight contract from §4.3/§5:
// unlike golang.org/x/sync/singleflight.Group, a result here is retained for
// the process lifetime rather than forgotten once the in-flight call drains,
// so a later register() after publish() observes the stored value without
// re-running providers.
type fetchGroup struct {
	mu      sync.Mutex
	results map[string]*fetchResult
}

func newFetchGroup() *fetchGroup {
	return &fetchGroup{results: make(map[string]*fetchResult)}
}

func slotKey(k FetchKey, who username) string {
	return k.String() + "|" + who.String()
}

// register returns the shared slot for (key, who) and reports whether the
// caller is the elected fetcher (true) or must wait (false). The elected
// fetcher must eventually call publish on the returned slot.
func (g *fetchGroup) register(k FetchKey, who username) (slot *fetchResult, elected bool) {
	key := slotKey(k, who)
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.results[key]; ok {
		return existing, false
	}
	slot = &fetchResult{ch: make(chan struct{})}
	g.results[key] = slot
	return slot, true
}

// publish publishes the result and wakes all current and future waiters. Safe
// to call exactly once per slot; the fetchGroup never removes the slot, so
// subsequent register calls for the same key observe this result.
func (s *fetchResult) publish(creds Credentials, found bool, err error) {
	s.creds, s.found, s.err = creds, found, err
	close(s.ch)
}

// wait blocks until the slot is published and returns its result. If the
// elected fetcher's goroutine abandons the slot without publishing (e.g. it
// panics or is cancelled), wait never returns; per §5 this is a known
// limitation the middleware documents rather than guards against.
func (s *fetchResult) wait() (Credentials, bool, error) {
	<-s.ch
	return s.creds, s.found, s.err
}
