// Package hook defines the interfaces a preview server hook may implement.  A hook can be any value; the preview
// server checks it against each interface and calls the ones it implements while setting itself up.
package hook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Listen hooks replace the listener the preview server would otherwise open.  Only the first is used.
type Listen interface {
	Listen(ctx context.Context) (net.Listener, error)
}

// Listener hooks adjust the net.ListenConfig used when the preview server opens its own listener.
type Listener interface {
	RigListener(*net.ListenConfig)
}

// Server hooks adjust the HTTP server before it starts serving.
type Server interface {
	RigServer(*http.Server)
}

// Mux hooks add routes, after the preview server's own routes.
type Mux interface {
	RigMux(*http.ServeMux)
}

// A Provider names what a hook provides so that a Dependent can be placed after it.
type Provider interface {
	Provides() []string
}

// A Dependent names what must be provided before it.
type Dependent interface {
	DependsOn() []string
}

// Order returns the hooks with every Dependent placed after the hooks that provide what it depends on, otherwise
// keeping the order they were given in.  It fails if nothing provides a dependency or if dependencies form a cycle.
func Order(hooks ...any) ([]any, error) {
	providers := make(map[string][]int)
	for i, it := range hooks {
		if p, ok := it.(Provider); ok {
			for _, name := range p.Provides() {
				providers[name] = append(providers[name], i)
			}
		}
	}

	// waiting[i] counts the providers hook i still needs placed; unblocks[j] lists the hooks waiting on hook j.
	waiting := make([]int, len(hooks))
	unblocks := make([][]int, len(hooks))
	for i, it := range hooks {
		d, ok := it.(Dependent)
		if !ok {
			continue
		}
		seen := make(map[int]bool)
		for _, name := range d.DependsOn() {
			found := providers[name]
			if len(found) == 0 {
				return nil, fmt.Errorf(`%w: nothing provides %q for %T`, ErrDependency, name, it)
			}
			for _, j := range found {
				if j == i || seen[j] {
					continue
				}
				seen[j] = true
				waiting[i]++
				unblocks[j] = append(unblocks[j], i)
			}
		}
	}

	ret := make([]any, 0, len(hooks))
	placed := make([]bool, len(hooks))
	for len(ret) < len(hooks) {
		next := -1
		for i := range hooks {
			if !placed[i] && waiting[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf(`%w: dependency cycle`, ErrDependency)
		}
		placed[next] = true
		ret = append(ret, hooks[next])
		for _, i := range unblocks[next] {
			waiting[i]--
		}
	}
	return ret, nil
}

// ErrDependency is returned by Order when hooks cannot be ordered.
var ErrDependency = errors.New(`hook dependency`)
