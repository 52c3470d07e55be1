// Package api collects HTTP routes and middleware into a hook.Mux that the preview server installs.
package api

import (
	"net/http"

	"github.com/swdunlop/assetrig-go/rig/hook"
)

// New returns a hook.Mux with the routes described by the options.
func New(options ...Option) (*Routes, error) {
	rt := new(Routes)
	for _, option := range options {
		err := option(rt)
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Use returns an option that applies the given middleware to all subsequent handlers.  You can stack middleware
// multiple times, the earliest middleware added will be the outermost layer and therefore will be run first.
func Use(fn func(http.Handler) http.Handler) Option {
	return func(rt *Routes) error {
		rt.middleware = append(rt.middleware, fn)
		return nil
	}
}

// HandleFunc accepts a http.ServeMux pattern and a handler function.
func HandleFunc(pattern string, fn func(w http.ResponseWriter, r *http.Request)) Option {
	return Handle(pattern, http.HandlerFunc(fn))
}

// Handle accepts a http.ServeMux pattern and a http.Handler.
func Handle(pattern string, handler http.Handler) Option {
	return func(rt *Routes) error {
		for i := len(rt.middleware) - 1; i >= 0; i-- {
			handler = rt.middleware[i](handler)
		}
		rt.patternHandlers = append(rt.patternHandlers, patternHandler{
			pattern: pattern,
			handler: handler,
		})
		return nil
	}
}

// Group organizes a group of options into a single option.  Middleware added inside the group does not affect
// handlers outside of it.
func Group(options ...Option) Option {
	return func(rt *Routes) error {
		old := rt.middleware
		defer func() { rt.middleware = old }()
		for _, option := range options {
			err := option(rt)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// An Option adds routes or middleware.
type Option func(*Routes) error

// Routes is a set of routes with their middleware already applied.
type Routes struct {
	middleware      []func(http.Handler) http.Handler
	patternHandlers []patternHandler
}

// Patterns lists the route patterns in the order they were added.
func (rt *Routes) Patterns() []string {
	ret := make([]string, len(rt.patternHandlers))
	for i, it := range rt.patternHandlers {
		ret[i] = it.pattern
	}
	return ret
}

// RigMux adds the configured handlers to the provided ServeMux, implementing the hook.Mux interface.
func (rt *Routes) RigMux(mux *http.ServeMux) {
	for _, it := range rt.patternHandlers {
		mux.Handle(it.pattern, it.handler)
	}
}

var _ hook.Mux = (*Routes)(nil)

type patternHandler struct {
	pattern string
	handler http.Handler
}
