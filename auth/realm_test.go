package auth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRealmOfDefaultsPorts(t *testing.T) {
	httpURL := mustURL(t, "http://Example.com/foo")
	r := RealmOf(httpURL)
	require.Equal(t, Realm{Scheme: "http", Host: "example.com", Port: 80}, r)

	httpsURL := mustURL(t, "https://example.com:8443/foo")
	r2 := RealmOf(httpsURL)
	require.Equal(t, Realm{Scheme: "https", Host: "example.com", Port: 8443}, r2)
}

func TestRealmStringOmitsDefaultPort(t *testing.T) {
	require.Equal(t, "example.com", Realm{Scheme: "https", Host: "example.com", Port: 443}.String())
	require.Equal(t, "example.com:8443", Realm{Scheme: "https", Host: "example.com", Port: 8443}.String())
}

func TestPathPrefixMatchSegmentAligned(t *testing.T) {
	require.True(t, pathPrefixMatch("/prefix_1", "/prefix_1"))
	require.True(t, pathPrefixMatch("/prefix_1", "/prefix_1/foo"))
	require.False(t, pathPrefixMatch("/prefix_1", "/prefix_1_foo"))
}

func TestSameAuthority(t *testing.T) {
	a := mustURL(t, "https://host/a")
	b := mustURL(t, "https://HOST:443/b")
	require.True(t, sameAuthority(a, b))

	c := mustURL(t, "https://host:8443/a")
	require.False(t, sameAuthority(a, c))
}
