package tenant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Acme.AllTownDelivery.com":      "acme.alltowndelivery.com",
		"acme.alltowndelivery.com:8080": "acme.alltowndelivery.com",
		"localhost:3000":                "localhost",
		" shop.example.com ":            "shop.example.com",
		"[::1]:3000":                    "[::1]",
		"":                              "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeHost(in), "input %q", in)
	}
}

func TestSubdomain(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme", Subdomain("acme.alltowndelivery.com"))
	require.Equal(t, "shop", Subdomain("shop.some.site.example.com"))
	require.Equal(t, "", Subdomain("alltowndelivery.com"))
	require.Equal(t, "", Subdomain("localhost"))
	require.Equal(t, "", Subdomain("sub.localhost"))
}
