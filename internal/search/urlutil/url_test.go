package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_EquivalentFormsCollapse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"uppercase host", "http://X.COM/a", "http://x.com/a"},
		{"trailing slash", "http://x.com/a/", "http://x.com/a"},
		{"default http port", "http://x.com:80/a", "http://x.com/a"},
		{"default https port", "https://x.com:443/a", "https://x.com/a"},
		{"fragment dropped", "http://x.com/a#section", "http://x.com/a"},
		{"query sorted", "http://x.com/a?b=2&a=1", "http://x.com/a?a=1&b=2"},
		{"bare root", "http://x.com/", "http://x.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_RejectsRelative(t *testing.T) {
	t.Parallel()

	_, err := Normalize("/just/a/path")
	require.Error(t, err)
}

func TestResolveLink_FiltersSchemesAndAssets(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)

	got, ok := ResolveLink(base, "../about")
	require.True(t, ok)
	require.Equal(t, "https://example.com/about", got)

	_, ok = ResolveLink(base, "mailto:someone@example.com")
	require.False(t, ok)

	_, ok = ResolveLink(base, "javascript:void(0)")
	require.False(t, ok)

	_, ok = ResolveLink(base, "/logo.png")
	require.False(t, ok)
}

func TestHost(t *testing.T) {
	t.Parallel()

	host, err := Host("https://Example.COM:8443/path")
	require.NoError(t, err)
	require.Equal(t, "example.com", host)
}
