// Package local provides the preview server with a listener on a local TCP address or Unix socket.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/swdunlop/assetrig-go/rig/hook"
	"github.com/swdunlop/assetrig-go/rig/preview"
)

// Rig returns a preview.Option that listens on a local network address.
func Rig(options ...Option) preview.Option {
	return func(p *preview.Config) error {
		lr := new(listener)
		for _, option := range options {
			err := option(lr)
			if err != nil {
				return err
			}
		}
		if lr.network == `` || lr.address == `` {
			return errors.New(`local listeners must configure both network and address`)
		}
		return preview.Hook(lr)(p)
	}
}

// An Option configures a local listener.
type Option func(*listener) error

type listener struct {
	network string
	address string
	config  net.ListenConfig
}

// TCP listens on a TCP address, such as "localhost:8080".
func TCP(address string) Option {
	return Listen(`tcp`, address)
}

// Unix listens on a Unix socket.  A socket left behind by a previous run is replaced.
func Unix(path string) Option {
	return Listen(`unix`, path)
}

// Listen listens on any network supported by net.Listen.
func Listen(network, address string) Option {
	return func(lr *listener) error {
		lr.network = network
		lr.address = address
		return nil
	}
}

// KeepAlive sets the keepalive period for accepted connections; a negative period disables keepalives.
func KeepAlive(keepalive time.Duration) Option {
	return func(lr *listener) error {
		lr.config.KeepAlive = keepalive
		return nil
	}
}

// ListenConfig adjusts the net.ListenConfig used to open the listener.
func ListenConfig(options ...func(*net.ListenConfig)) Option {
	return func(lr *listener) error {
		for _, option := range options {
			option(&lr.config)
		}
		return nil
	}
}

// Listen implements hook.Listen.
func (lr *listener) Listen(ctx context.Context) (net.Listener, error) {
	if lr.network == `unix` {
		if err := removeStaleSocket(lr.address); err != nil {
			return nil, err
		}
	}
	return lr.config.Listen(ctx, lr.network, lr.address)
}

var _ hook.Listen = (*listener)(nil)

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case info.Mode().Type() != fs.ModeSocket:
		return fmt.Errorf(`%q exists and is not a socket`, path)
	}
	return os.Remove(path)
}
