// Package tailscale lets the preview server listen on a Tailscale network instead of a local address, so a build can be
// previewed from other devices on the tailnet or, with a funnel, from anywhere.
package tailscale

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"

	"github.com/swdunlop/html-go/hog"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/swdunlop/assetrig-go/rig/hook"
	"github.com/swdunlop/assetrig-go/rig/preview"
)

// Rig returns a preview.Option that serves the preview on a Tailscale node at address.  An empty address means ":443",
// or ":80" with NoTLS.
func Rig(address string, options ...Option) preview.Option {
	return func(p *preview.Config) error {
		node := &node{address: address}
		for _, option := range options {
			err := option(node)
			if err != nil {
				return err
			}
		}
		return node.rig(p)
	}
}

type node struct {
	server  tsnet.Server
	address string
	funnel  bool
	noTLS   bool
	onUp    []func(*tsnet.Server, *ipnstate.Status) error
	up      atomic.Bool // set once the node is up, which silences the default log
}

func (n *node) rig(p *preview.Config) error {
	if n.funnel && n.noTLS {
		return errors.New(`a Tailscale funnel requires TLS`)
	}
	if n.address == `` {
		n.address = `:443`
		if n.noTLS {
			n.address = `:80`
		}
	}
	return preview.Hook(n)(p)
}

// Listen implements hook.Listen.  It brings the node up, which may wait for the node to be authorized, and closes it
// when ctx ends.
func (n *node) Listen(ctx context.Context) (net.Listener, error) {
	if n.server.Logf == nil {
		n.server.Logf = func(format string, args ...any) {
			if !n.up.Load() {
				hog.From(ctx).Debug().Msgf(format, args...)
			}
		}
	}
	status, err := n.server.Up(ctx)
	if err != nil {
		_ = n.server.Close()
		return nil, err
	}
	n.up.Store(true)
	for _, fn := range n.onUp {
		if err := fn(&n.server, status); err != nil {
			_ = n.server.Close()
			return nil, err
		}
	}

	var lr net.Listener
	switch {
	case n.funnel:
		lr, err = n.server.ListenFunnel(`tcp`, n.address)
	case n.noTLS:
		lr, err = n.server.Listen(`tcp`, n.address)
	default:
		lr, err = n.server.ListenTLS(`tcp`, n.address)
	}
	if err != nil {
		_ = n.server.Close()
		return nil, err
	}
	if url := n.url(status); url != `` {
		hog.From(ctx).Info().Str(`url`, url).Bool(`funnel`, n.funnel).Msg(`preview available on Tailscale`)
	}
	go func() {
		<-ctx.Done()
		_ = n.server.Close()
	}()
	return lr, nil
}

// url returns the address a browser on the tailnet would use to reach the preview.
func (n *node) url(status *ipnstate.Status) string {
	if status == nil || status.Self == nil || status.Self.DNSName == `` {
		return ``
	}
	host := strings.TrimSuffix(status.Self.DNSName, `.`)
	scheme, port := `https`, `:443`
	if n.noTLS {
		scheme, port = `http`, `:80`
	}
	if !strings.HasSuffix(n.address, port) {
		_, p, err := net.SplitHostPort(n.address)
		if err == nil {
			host += `:` + p
		}
	}
	return scheme + `://` + host + `/`
}

var _ hook.Listen = (*node)(nil)

// An Option configures the Tailscale node.
type Option func(*node) error

// Dir specifies where Tailscale keeps its state.
func Dir(dir string) Option {
	return func(n *node) error {
		n.server.Dir = dir
		return nil
	}
}

// Hostname specifies the node's name on the tailnet.  Defaults to the system hostname.
func Hostname(hostname string) Option {
	return func(n *node) error {
		n.server.Hostname = hostname
		return nil
	}
}

// Funnel allows connections from the internet.
func Funnel() Option {
	return func(n *node) error {
		n.funnel = true
		return nil
	}
}

// NoTLS serves plain HTTP.  This is incompatible with Funnel.
func NoTLS() Option {
	return func(n *node) error {
		n.noTLS = true
		return nil
	}
}

// Logf replaces the node's log function.  By default, Tailscale's messages are logged at debug level until the node
// is up and dropped after that.
func Logf(f func(format string, args ...any)) Option {
	return func(n *node) error {
		n.server.Logf = f
		return nil
	}
}

// HookUp adds a function called once the node is up and authorized, before the preview listener is opened.  If it
// returns an error, the node is closed.
func HookUp(fn func(*tsnet.Server, *ipnstate.Status) error) Option {
	return func(n *node) error {
		n.onUp = append(n.onUp, fn)
		return nil
	}
}
