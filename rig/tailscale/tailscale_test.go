package tailscale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tailscale.com/ipn/ipnstate"

	"github.com/swdunlop/assetrig-go/rig/preview"
)

func TestFunnelRequiresTLS(t *testing.T) {
	_, err := preview.New(t.TempDir(), Rig(``, Funnel(), NoTLS()))
	assert.Error(t, err)
}

func TestDefaultAddress(t *testing.T) {
	for _, tc := range []struct {
		options []Option
		address string
	}{
		{nil, `:443`},
		{[]Option{NoTLS()}, `:80`},
	} {
		n := &node{}
		for _, option := range tc.options {
			require.NoError(t, option(n))
		}
		cfg, err := preview.New(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, n.rig(cfg))
		assert.Equal(t, tc.address, n.address)
	}
}

func TestURL(t *testing.T) {
	status := &ipnstate.Status{Self: &ipnstate.PeerStatus{DNSName: `site.example.ts.net.`}}
	assert.Equal(t, `https://site.example.ts.net/`, (&node{address: `:443`}).url(status))
	assert.Equal(t, `http://site.example.ts.net/`, (&node{address: `:80`, noTLS: true}).url(status))
	assert.Equal(t, `https://site.example.ts.net:8443/`, (&node{address: `:8443`}).url(status))
	assert.Empty(t, (&node{address: `:443`}).url(&ipnstate.Status{}))
}

func TestLogf(t *testing.T) {
	var seen string
	n := &node{}
	require.NoError(t, Logf(func(format string, _ ...any) { seen = format })(n))
	n.server.Logf(`hello`)
	assert.Equal(t, `hello`, seen)
}
