package providers

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/99designs/keyring"
)

// KeyringEntry is the (username, password) pair a keyring lookup returns.
type KeyringEntry struct {
	Username string
	Password string
}

// Keyring is the abstract keyring protocol from §6: a blocking
// fetch-by-(service, optional username) oracle. Implementations must
// include a non-standard port in service when present; the default port is
// omitted (the middleware passes Realm.String(), which already does this, or
// the matched index URL).
type Keyring interface {
	Fetch(service string, username *string) (KeyringEntry, bool, error)
}

// OSKeyring is a Keyring backed by the host OS credential store via
// 99designs/keyring (Keychain, Secret Service, wincred, or an encrypted
// file/pass fallback depending on platform and configuration).
type OSKeyring struct {
	mu      sync.Mutex
	backend keyring.Keyring
}

// NewOSKeyring opens the OS keyring under the given service name. allowed,
// when non-empty, restricts which backend types keyring.Open may pick.
func NewOSKeyring(serviceName string, allowed ...keyring.BackendType) (*OSKeyring, error) {
	cfg := keyring.Config{ServiceName: serviceName}
	if len(allowed) > 0 {
		cfg.AllowedBackends = allowed
	}
	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &OSKeyring{backend: ring}, nil
}

// Fetch looks up the keyring item keyed by service. The OS keyring has no
// native notion of an optional username, so entries are stored as a small
// JSON blob ({"username":"...","password":"..."}) under the service key;
// when username is supplied it is matched against the stored value and a
// mismatch is treated as not-found, not an error. Calls are serialized
// through a mutex: this Keyring is expected to be consulted only from
// within the single-flight coordinator, which already serializes per
// FetchKey, but the mutex also protects concurrent lookups under different
// keys against backends (e.g. file-based) that are not internally
// goroutine-safe.
func (k *OSKeyring) Fetch(service string, username *string) (KeyringEntry, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	item, err := k.backend.Get(service)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return KeyringEntry{}, false, nil
		}
		return KeyringEntry{}, false, err
	}
	var entry KeyringEntry
	if err := json.Unmarshal(item.Data, &entry); err != nil {
		return KeyringEntry{}, false, err
	}
	if username != nil && entry.Username != *username {
		return KeyringEntry{}, false, nil
	}
	return entry, true, nil
}

// Store writes (or replaces) the keyring entry for service. Exposed for
// operator tooling / tests that seed a keyring ahead of a run; the auth
// middleware itself never calls it (it only reads, per the Non-goals in
// the specification: the middleware must never modify the keyring).
func (k *OSKeyring) Store(service string, entry KeyringEntry) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return k.backend.Set(keyring.Item{Key: service, Data: data})
}

// MemoryKeyring is an in-memory Keyring test double, the Go analogue of the
// reference implementation's dummy keyring fixture used throughout its test
// suite.
type MemoryKeyring struct {
	mu      sync.Mutex
	entries map[string]KeyringEntry
}

// NewMemoryKeyring builds a MemoryKeyring seeded with the given
// service->entry pairs.
func NewMemoryKeyring(seed map[string]KeyringEntry) *MemoryKeyring {
	entries := make(map[string]KeyringEntry, len(seed))
	for k, v := range seed {
		entries[k] = v
	}
	return &MemoryKeyring{entries: entries}
}

// Fetch implements Keyring.
func (m *MemoryKeyring) Fetch(service string, username *string) (KeyringEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[service]
	if !ok {
		return KeyringEntry{}, false, nil
	}
	if username != nil && entry.Username != *username {
		return KeyringEntry{}, false, nil
	}
	return entry, true, nil
}

// Set seeds or replaces an entry, for use from test setup.
func (m *MemoryKeyring) Set(service string, entry KeyringEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service] = entry
}
