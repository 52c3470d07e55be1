// Package rig assembles the asset pipeline: a stage for every category, the clean and build operations over them,
// and a watch and serve loop that rebuilds stages when their sources change and tells a preview server to reload.
//
// The operations are flow graphs so they can be listed, printed and run by name.  The default operation cleans the
// output, builds every stage concurrently, then watches and serves until the context is cancelled:
//
//	series(clean, parallel(tolerate(build-html), ..., tolerate(build-fonts)), linked(watch, serve))
package rig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"

	"github.com/swdunlop/assetrig-go/rig/dispatch"
	"github.com/swdunlop/assetrig-go/rig/flow"
	"github.com/swdunlop/assetrig-go/rig/glob"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/preview"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sass"
	"github.com/swdunlop/assetrig-go/rig/stage"
	"github.com/swdunlop/assetrig-go/rig/watcher"
)

// DefaultAddress is where the preview server listens if nothing else is configured.
const DefaultAddress = `localhost:8080`

// New returns a pipeline configured by the options.  The registry is validated before anything else is done.
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		registry: paths.Default(),
		address:  DefaultAddress,
	}
	for _, option := range options {
		err := option(p)
		if err != nil {
			return nil, err
		}
	}
	if err := p.registry.Validate(); err != nil {
		return nil, err
	}
	p.profile = profile.For(p.mode)

	stages, err := stage.All(p.registry, p.profile, p.stageOptions...)
	if err != nil {
		return nil, err
	}
	p.stages = make(map[paths.Category]*stage.Stage, len(stages))
	for _, s := range stages {
		p.stages[s.Category()] = s
	}

	previewOptions := append([]preview.Option{preview.OnBuild(p.rebuild)}, p.previewOptions...)
	p.preview, err = preview.New(p.registry.Clean, previewOptions...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// An Option is a function that modifies a Pipeline before it is used.
type Option func(*Pipeline) error

// Registry replaces the default registry.
func Registry(reg *paths.Registry) Option {
	return func(p *Pipeline) error {
		if reg == nil {
			return errors.New(`nil registry`)
		}
		p.registry = reg
		return nil
	}
}

// Mode selects the build profile.  Defaults to profile.None.
func Mode(mode profile.Mode) Option {
	return func(p *Pipeline) error {
		p.mode = mode
		return nil
	}
}

// Compiler replaces the Sass compiler.
func Compiler(compiler sass.Compiler) Option {
	return func(p *Pipeline) error {
		p.stageOptions = append(p.stageOptions, stage.Compiler(compiler))
		return nil
	}
}

// Stage passes options to every stage.
func Stage(options ...stage.Option) Option {
	return func(p *Pipeline) error {
		p.stageOptions = append(p.stageOptions, options...)
		return nil
	}
}

// Preview passes options to the preview server, such as those from the local and tailscale packages.
func Preview(options ...preview.Option) Option {
	return func(p *Pipeline) error {
		p.previewOptions = append(p.previewOptions, options...)
		return nil
	}
}

// Address sets the preview server's address when no listener hook is configured.
func Address(address string) Option {
	return func(p *Pipeline) error {
		p.address = address
		return nil
	}
}

// Settle sets how long a watch rerun waits for further changes to the same category before it starts.
func Settle(interval time.Duration) Option {
	return func(p *Pipeline) error {
		p.dispatchOptions = append(p.dispatchOptions, dispatch.Settle(interval))
		return nil
	}
}

// WatchExclude adds file name patterns that the watcher ignores, in addition to dot files.
func WatchExclude(patterns ...string) Option {
	return func(p *Pipeline) error {
		p.watchExcludes = append(p.watchExcludes, patterns...)
		return nil
	}
}

// A Pipeline holds the stages for a registry and profile and the operations over them.
type Pipeline struct {
	registry        *paths.Registry
	mode            profile.Mode
	profile         profile.Profile
	stages          map[paths.Category]*stage.Stage
	stageOptions    []stage.Option
	preview         *preview.Config
	previewOptions  []preview.Option
	address         string
	watchExcludes   []string
	dispatchOptions []dispatch.Option

	mu         sync.Mutex
	dispatcher *dispatch.Dispatcher // set while watching
}

// Registry returns the registry the pipeline was built from.
func (p *Pipeline) Registry() *paths.Registry { return p.registry }

// Profile returns the build profile.
func (p *Pipeline) Profile() profile.Profile { return p.profile }

// Stage returns the stage for a category.
func (p *Pipeline) Stage(category paths.Category) (*stage.Stage, error) {
	s, ok := p.stages[category]
	if !ok {
		return nil, fmt.Errorf(`%w %q`, paths.ErrUnknownCategory, category)
	}
	return s, nil
}

// Clean removes the output root and everything in it.
func (p *Pipeline) Clean(ctx context.Context) error {
	dir := filepath.Clean(filepath.FromSlash(p.registry.Clean))
	switch dir {
	case `.`, string(filepath.Separator):
		return fmt.Errorf(`refusing to clean %q`, p.registry.Clean)
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	hog.From(ctx).Info().Str(`dir`, dir).Msg(`cleaned`)
	return nil
}

// Build runs the stage for one category.
func (p *Pipeline) Build(ctx context.Context, category paths.Category) error {
	s, err := p.Stage(category)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// BuildAll runs every stage concurrently.  A failing stage does not stop the others; all errors are returned.
func (p *Pipeline) BuildAll(ctx context.Context) error {
	return flow.Run(ctx, p.buildAll(false))
}

// Watch rebuilds stages when files matching their watch patterns change and tells the preview server, until the
// context is cancelled.  Stage errors are logged and do not stop watching.
func (p *Pipeline) Watch(ctx context.Context) error {
	runners := make(map[paths.Category]dispatch.Runner, len(p.stages))
	for c, s := range p.stages {
		runners[c] = s
	}
	d, err := dispatch.New(p.registry, runners, p.preview, p.dispatchOptions...)
	if err != nil {
		return err
	}
	var patterns []string
	var compiled []*glob.Pattern
	for _, b := range d.Bindings() {
		patterns = append(patterns, b.Pattern.String())
		compiled = append(compiled, b.Pattern)
	}
	options := []watcher.Option{
		watcher.Directory(glob.Bases(compiled...)...),
		watcher.Include(patterns...),
	}
	if len(p.watchExcludes) > 0 {
		options = append(options, watcher.Exclude(append([]string{`.*`}, p.watchExcludes...)...))
	}
	w, err := watcher.Start(ctx, options...)
	if err != nil {
		return err
	}
	defer w.Shutdown()

	p.mu.Lock()
	p.dispatcher = d
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.dispatcher = nil
		p.mu.Unlock()
	}()

	hog.From(ctx).Info().Strs(`patterns`, patterns).Msg(`watching for changes`)
	err = d.Run(ctx, w.Events())
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve runs the preview server until the context is cancelled.
func (p *Pipeline) Serve(ctx context.Context) error {
	return p.preview.Serve(ctx, p.address)
}

// rebuild handles build requests from preview clients, using the dispatcher when watching so that the request is
// queued with any rebuild caused by a change.
func (p *Pipeline) rebuild(ctx context.Context, category paths.Category) error {
	p.mu.Lock()
	d := p.dispatcher
	p.mu.Unlock()
	if d != nil {
		return d.Trigger(category)
	}
	err := p.Build(ctx, category)
	p.preview.Reload(ctx, category)
	return err
}

// Default runs the default graph.
func (p *Pipeline) Default(ctx context.Context) error {
	return flow.Run(ctx, p.Graph())
}

// Graph returns the default graph.  Clean must succeed before anything is built; a failing build stage is logged and
// does not stop the other stages or the watch and serve loop.
func (p *Pipeline) Graph() flow.Node {
	return flow.Series{
		p.task(`clean`),
		p.buildAll(true),
		flow.Linked{p.task(`watch`), p.task(`serve`)},
	}
}

// Operations lists the names accepted by Operation.
func (p *Pipeline) Operations() []string {
	ret := []string{`clean`}
	for _, c := range paths.Categories {
		ret = append(ret, BuildName(c))
	}
	return append(ret, `build`, `watch`, `serve`, `default`)
}

// Operation returns the graph for a named operation.
func (p *Pipeline) Operation(name string) (flow.Node, error) {
	switch name {
	case `build`:
		return p.buildAll(false), nil
	case `default`:
		return p.Graph(), nil
	}
	for _, it := range p.Operations() {
		if it == name {
			return p.task(name), nil
		}
	}
	return nil, fmt.Errorf(`unknown operation %q`, name)
}

// Run runs a named operation.
func (p *Pipeline) Run(ctx context.Context, name string) error {
	node, err := p.Operation(name)
	if err != nil {
		return err
	}
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context {
		return z.Str(`mode`, p.mode.String())
	})
	return flow.Run(ctx, node)
}

// BuildName returns the operation name that builds a category, like "build-css".
func BuildName(category paths.Category) string {
	switch category {
	case paths.Image:
		return `build-images`
	case paths.Font:
		return `build-fonts`
	default:
		return `build-` + string(category)
	}
}

func (p *Pipeline) buildAll(tolerant bool) flow.Parallel {
	ret := make(flow.Parallel, 0, len(paths.Categories))
	for _, c := range paths.Categories {
		var node flow.Node = p.task(BuildName(c))
		if tolerant {
			node = flow.Tolerate(node)
		}
		ret = append(ret, node)
	}
	return ret
}

func (p *Pipeline) task(name string) flow.Task {
	switch name {
	case `clean`:
		return flow.Task{Name: name, Fn: p.Clean}
	case `watch`:
		return flow.Task{Name: name, Fn: p.Watch}
	case `serve`:
		return flow.Task{Name: name, Fn: p.Serve}
	}
	for _, c := range paths.Categories {
		if BuildName(c) == name {
			return flow.Task{Name: name, Fn: func(ctx context.Context) error { return p.Build(ctx, c) }}
		}
	}
	panic(fmt.Sprintf(`no task named %q`, name))
}
