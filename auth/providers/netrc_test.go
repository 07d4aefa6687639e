package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeNetrcFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "netrc")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestNetrcLookupByHost(t *testing.T) {
	path := writeNetrcFile(t, "machine example.com login alice password secret\n")
	n := NewNetrc(NetrcEnabled, path, nil)

	u := mustHTTPURL(t, "https://example.com/simple/")
	user, pass, ok := n.Lookup(u, nil)
	require.True(t, ok)
	require.Equal(t, "alice", user)
	require.Equal(t, "secret", pass)
}

func TestNetrcLookupUsernameMismatch(t *testing.T) {
	path := writeNetrcFile(t, "machine example.com login alice password secret\n")
	n := NewNetrc(NetrcEnabled, path, nil)

	bob := "bob"
	_, _, ok := n.Lookup(mustHTTPURL(t, "https://example.com/"), &bob)
	require.False(t, ok)
}

func TestNetrcDisabledNeverLooksUp(t *testing.T) {
	path := writeNetrcFile(t, "machine example.com login alice password secret\n")
	n := NewNetrc(NetrcDisabled, path, nil)

	_, _, ok := n.Lookup(mustHTTPURL(t, "https://example.com/"), nil)
	require.False(t, ok)
}

func TestNetrcParseErrorIsNeverFatal(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist")

	var captured error
	n := NewNetrc(NetrcEnabled, missing, func(err error) { captured = err })

	_, _, ok := n.Lookup(mustHTTPURL(t, "https://example.com/"), nil)
	require.False(t, ok)
	require.Error(t, captured)
}

func TestNetrcParsesOnlyOnce(t *testing.T) {
	path := writeNetrcFile(t, "machine example.com login alice password secret\n")
	calls := 0
	n := NewNetrc(NetrcEnabled, path, func(error) { calls++ })

	n.Lookup(mustHTTPURL(t, "https://example.com/"), nil)
	// With the file gone, a second parse would fail; the lookup still
	// succeeding shows the first parse result is reused.
	require.NoError(t, os.Remove(path))
	_, _, ok := n.Lookup(mustHTTPURL(t, "https://example.com/"), nil)
	require.True(t, ok)
	require.Equal(t, 0, calls)
}
