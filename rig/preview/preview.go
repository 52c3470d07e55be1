// Package preview serves the build output to a browser and tells open pages to reload when a stage is rebuilt.
//
// Pages learn about rebuilds through server sent events at /_rig/reload or JSON-RPC notifications over a websocket
// at /_rig/rpc; the script at /_rig/reload.js, which is added to every HTML page served, uses the former.  Each
// event carries the name of the rebuilt stage so that a stylesheet change can be applied without reloading the
// page.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/swdunlop/html-go/hog"
	"github.com/tmaxmax/go-sse"

	"github.com/swdunlop/assetrig-go/rig/api"
	"github.com/swdunlop/assetrig-go/rig/hook"
	"github.com/swdunlop/assetrig-go/rig/jrpc"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/www"
)

// New returns a preview server for the files in dir.
func New(dir string, options ...Option) (*Config, error) {
	cfg := &Config{
		dir:    dir,
		stages: paths.Categories,
		sse:    &sse.Server{},
	}
	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return nil, err
		}
	}
	cfg.rpc = jrpc.Handle(
		jrpc.ReadLimit(1<<16),
		jrpc.Use(logCalls),
		jrpc.Fn(`stages`, cfg.rpcStages),
		jrpc.Fn(`build`, cfg.rpcBuild),
		jrpc.Proc(`build`, func(ctx *jrpc.Scope, req BuildRequest) {
			if _, err := cfg.rpcBuild(ctx, req); err != nil {
				hog.From(ctx).Warn().Err(err).Msg(`build request failed`)
			}
		}),
	)
	return cfg, nil
}

// A Config is a preview server configuration.
type Config struct {
	dir     string
	stages  []paths.Category
	hooks   []any
	onBuild func(context.Context, paths.Category) error
	sse     *sse.Server
	rpc     *jrpc.Endpoint
}

// An Option is a function that modifies a Config before it is served.
type Option func(*Config) error

// Hook adds hooks to the configuration, see the hook package for interfaces that hooks can implement.
func Hook(hooks ...any) Option {
	return func(cfg *Config) error {
		cfg.hooks = append(cfg.hooks, hooks...)
		return nil
	}
}

// OnBuild sets the function called when a client asks for a stage to be rebuilt.  Without one, build requests fail.
func OnBuild(fn func(ctx context.Context, category paths.Category) error) Option {
	return func(cfg *Config) error {
		cfg.onBuild = fn
		return nil
	}
}

// Stages limits the stages reported to clients.  Defaults to every category.
func Stages(categories ...paths.Category) Option {
	return func(cfg *Config) error {
		cfg.stages = categories
		return nil
	}
}

// Dir returns the directory being served.
func (cfg *Config) Dir() string { return cfg.dir }

// Handler returns the handler for every route of the preview server, including those added by hook.Mux hooks.
func (cfg *Config) Handler() (http.Handler, error) {
	routes, err := api.New(
		api.HandleFunc(`GET /_rig/reload.js`, serveScript),
		api.Handle(`GET /_rig/reload`, cfg.sse),
		jrpc.API(`GET /_rig/rpc`, cfg.rpc),
		api.Group(
			api.Use(injectScript),
			api.Handle(`/`, www.Handler(cfg.dir)),
		),
	)
	if err != nil {
		return nil, err
	}
	hooks, err := hook.Order(append([]any{routes}, cfg.hooks...)...)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	for _, it := range hooks {
		if impl, ok := it.(hook.Mux); ok {
			impl.RigMux(mux)
		}
	}
	return mux, nil
}

// An Event is published to clients after a stage is rebuilt.
type Event struct {
	Stage paths.Category `json:"stage"`
}

// Reload tells every connected client that a stage was rebuilt.
func (cfg *Config) Reload(ctx context.Context, category paths.Category) {
	js, err := json.Marshal(Event{Stage: category})
	if err != nil {
		return
	}
	msg := &sse.Message{}
	msg.AppendData(string(js))
	if err := cfg.sse.Publish(msg); err != nil {
		hog.From(ctx).Warn().Err(err).Msg(`failed to publish reload event`)
	}
	if err := cfg.rpc.Notify(ctx, `reload`, Event{Stage: category}); err != nil {
		hog.From(ctx).Warn().Err(err).Msg(`failed to notify RPC clients`)
	}
	hog.From(ctx).Debug().Str(`stage`, string(category)).Int(`rpc_clients`, cfg.rpc.Sessions()).Msg(`reload published`)
}

// Serve will run the preview server at the provided address until the context is cancelled.  A hook.Listen hook, such
// as one from the local or tailscale packages, replaces the address.
func (cfg *Config) Serve(ctx context.Context, address string) error {
	handler, err := cfg.Handler()
	if err != nil {
		return err
	}
	hooks, err := hook.Order(cfg.hooks...)
	if err != nil {
		return err
	}

	var svr http.Server
	svr.Handler = handler
	svr.BaseContext = func(net.Listener) context.Context { return ctx }
	for _, it := range hooks {
		if impl, ok := it.(hook.Server); ok {
			impl.RigServer(&svr)
		}
	}

	lr, err := cfg.listen(ctx, hooks, address)
	if err != nil {
		return err
	}
	// no need to defer lr.Close, svr.Shutdown will close it

	go func() {
		<-ctx.Done()
		// event streams never end on their own, so they must be closed before the server can shut down.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cfg.sse.Shutdown(shutdownCtx)
		_ = svr.Shutdown(shutdownCtx)
	}()

	hog.From(ctx).Info().Str(`address`, lr.Addr().String()).Str(`dir`, cfg.dir).Msg(`starting preview service`)
	err = svr.Serve(lr)
	hog.From(ctx).Info().Err(err).Msg(`preview service stopped`)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	_ = lr.Close() // just in case, since we did not have a shutdown or server close.
	return err
}

func (cfg *Config) listen(ctx context.Context, hooks []any, address string) (net.Listener, error) {
	for _, it := range hooks {
		if impl, ok := it.(hook.Listen); ok {
			return impl.Listen(ctx)
		}
	}
	if address == `` {
		return nil, errors.New(`no listener or address configured for the preview service`)
	}
	var lcf net.ListenConfig
	for _, it := range hooks {
		if impl, ok := it.(hook.Listener); ok {
			impl.RigListener(&lcf)
		}
	}
	return lcf.Listen(ctx, `tcp`, address)
}

// A BuildRequest asks for a stage to be rebuilt.
type BuildRequest struct {
	Stage string `json:"stage"`
}

func (cfg *Config) rpcStages(_ *jrpc.Scope, _ struct{}) ([]paths.Category, error) {
	return cfg.stages, nil
}

func (cfg *Config) rpcBuild(ctx *jrpc.Scope, req BuildRequest) (Event, error) {
	category, err := paths.ParseCategory(req.Stage)
	if err != nil {
		return Event{}, err
	}
	if cfg.onBuild == nil {
		return Event{}, fmt.Errorf(`%s cannot be rebuilt by this server`, category)
	}
	err = cfg.onBuild(ctx, category)
	return Event{Stage: category}, err
}

func logCalls(next jrpc.Handler) jrpc.Handler {
	return func(ctx *jrpc.Scope) {
		started := time.Now()
		next(ctx)
		hog.From(ctx).Debug().
			Str(`method`, ctx.Method).
			Str(`id`, ctx.ID).
			Dur(`elapsed`, time.Since(started)).
			Msg(`RPC handled`)
	}
}
