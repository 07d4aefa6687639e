package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheInsertAndGetURLExactUsername(t *testing.T) {
	c := NewCache()
	u := mustURL(t, "https://example.com/simple/pkg")
	c.Insert(u, NewCredentials("alice", "secret"))

	got, ok := c.GetURL(u, concreteUsername("alice"))
	require.True(t, ok)
	require.Equal(t, "alice", got.Username)

	_, ok = c.GetURL(u, concreteUsername("bob"))
	require.False(t, ok)
}

func TestCacheGetURLLongestPrefixWins(t *testing.T) {
	c := NewCache()
	c.Insert(mustURL(t, "https://example.com/"), NewCredentials("root-user", "root-pass"))
	c.Insert(mustURL(t, "https://example.com/private"), NewCredentials("priv-user", "priv-pass"))

	got, ok := c.GetURL(mustURL(t, "https://example.com/private/pkg"), missingUsername)
	require.True(t, ok)
	require.Equal(t, "priv-user", got.Username)
}

func TestCacheGetURLSegmentAlignment(t *testing.T) {
	c := NewCache()
	c.Insert(mustURL(t, "https://example.com/prefix_1"), NewCredentials("u", "p"))

	_, ok := c.GetURL(mustURL(t, "https://example.com/prefix_1_foo"), missingUsername)
	require.False(t, ok, "prefix_1 must not match prefix_1_foo: not segment-aligned")
}

func TestCacheMissingUsernameQueryPrefersMissingEntry(t *testing.T) {
	c := NewCache()
	u := mustURL(t, "https://example.com/simple/")
	c.Insert(u, NewUsernameOnly("alice"))
	anonPass := "anon-pass"
	c.Insert(u, Credentials{Password: &anonPass})

	got, ok := c.GetURL(u, missingUsername)
	require.True(t, ok)
	require.Equal(t, "", got.Username)
}

func TestCacheConcreteQueryNeverReturnsDisagreeingUsername(t *testing.T) {
	c := NewCache()
	u := mustURL(t, "https://example.com/simple/")
	c.Insert(u, NewCredentials("alice", "secret"))

	_, ok := c.GetURL(u, concreteUsername("bob"))
	require.False(t, ok)
}

func TestCacheInsertPopulatesRealmMapOnce(t *testing.T) {
	c := NewCache()
	u := mustURL(t, "https://example.com/simple/")
	c.Insert(u, NewCredentials("alice", "secret"))
	c.Insert(mustURL(t, "https://example.com/other/"), NewCredentials("alice", "stale"))

	realm := RealmOf(u)
	got, ok := c.GetRealm(realm, concreteUsername("alice"))
	require.True(t, ok)
	require.Equal(t, "secret", *got.Password, "first insert for (realm, username) wins; second must not overwrite")
}

func TestCacheDoesNotGrowSpuriousURLEntries(t *testing.T) {
	c := NewCache()
	u := mustURL(t, "https://example.com/simple/")
	c.Insert(u, NewCredentials("alice", "secret"))
	c.Insert(u, NewCredentials("alice", "rotated"))
	require.Equal(t, 1, c.debugURLCount())
}
