// Package dispatch turns file change events into stage reruns.
//
// Each category has its own worker, so reruns of one category run one at a time and in the order they were
// requested while different categories rebuild concurrently.  A worker that receives a request waits for a settle
// interval before running, and requests that arrive in that interval are folded into the rerun; a single save often
// produces several write events.  A request that arrives while a rerun is in progress leaves exactly one rerun
// waiting.  A burst of saves therefore costs at most one rerun beyond the one already running.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
	"golang.org/x/sync/errgroup"

	"github.com/swdunlop/assetrig-go/rig/glob"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/watcher"
)

// A Runner reruns the stage for one category.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (fn RunnerFunc) Run(ctx context.Context) error { return fn(ctx) }

// A Notifier is told after each rerun, whether or not it succeeded.
type Notifier interface {
	Reload(ctx context.Context, category paths.Category)
}

// A Binding connects a watch pattern to the category it rebuilds.
type Binding struct {
	Pattern  *glob.Pattern
	Category paths.Category
}

// DefaultSettle is how long a worker waits after a request before rerunning its stage.
const DefaultSettle = 200 * time.Millisecond

// A Dispatcher maps changed paths to categories and reruns them.
type Dispatcher struct {
	bindings []Binding
	runners  map[paths.Category]Runner
	notify   Notifier
	pending  map[paths.Category]chan struct{}
	settle   time.Duration

	mu      sync.Mutex
	running bool
}

// An Option adjusts a Dispatcher during New.
type Option func(*Dispatcher) error

// Settle sets how long a worker waits after a request before rerunning, folding in any requests that arrive
// meanwhile.  Zero runs immediately.
func Settle(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		if interval < 0 {
			return fmt.Errorf(`negative settle interval %v`, interval)
		}
		d.settle = interval
		return nil
	}
}

// New binds the watch patterns of every category in runners.  The notifier may be nil.
func New(reg *paths.Registry, runners map[paths.Category]Runner, notify Notifier, options ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		runners: runners,
		notify:  notify,
		pending: make(map[paths.Category]chan struct{}, len(runners)),
		settle:  DefaultSettle,
	}
	for _, option := range options {
		err := option(d)
		if err != nil {
			return nil, err
		}
	}
	for _, c := range paths.Categories {
		if _, ok := runners[c]; !ok {
			continue
		}
		p, err := reg.Lookup(c)
		if err != nil {
			return nil, err
		}
		for _, pattern := range p.Watch {
			compiled, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf(`%w in %s watch pattern`, err, c)
			}
			d.bindings = append(d.bindings, Binding{Pattern: compiled, Category: c})
		}
		d.pending[c] = make(chan struct{}, 1)
	}
	return d, nil
}

// Bindings returns the watch bindings in category order.
func (d *Dispatcher) Bindings() []Binding {
	return append([]Binding(nil), d.bindings...)
}

// Match returns each category with a watch pattern matching the path, in category order.
func (d *Dispatcher) Match(path string) []paths.Category {
	var ret []paths.Category
	for _, b := range d.bindings {
		if !b.Pattern.Match(path) {
			continue
		}
		if n := len(ret); n > 0 && ret[n-1] == b.Category {
			continue
		}
		ret = append(ret, b.Category)
	}
	return ret
}

// Trigger requests a rerun of a category.  It never blocks; a request is dropped if one is already waiting.
func (d *Dispatcher) Trigger(category paths.Category) error {
	ch, ok := d.pending[category]
	if !ok {
		return fmt.Errorf(`%w %q`, paths.ErrUnknownCategory, category)
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

// Run triggers reruns for events until the context is cancelled or the events channel is closed, then waits for any
// rerun in progress to finish.  Stage errors are logged and never stop the dispatcher.
func (d *Dispatcher) Run(ctx context.Context, events <-chan watcher.Event) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf(`dispatcher is already running`)
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	for category, ch := range d.pending {
		g.Go(func() error {
			d.work(ctx, category, ch)
			return nil
		})
	}
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case event, ok := <-events:
			if !ok {
				cancel()
				return g.Wait()
			}
			for _, c := range d.Match(event.Path) {
				hog.From(ctx).Debug().Str(`path`, event.Path).Str(`stage`, string(c)).Msg(`change observed`)
				_ = d.Trigger(c)
			}
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, category paths.Category, pending <-chan struct{}) {
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context {
		return z.Str(`stage`, string(category))
	})
	runner := d.runners[category]
	for {
		select {
		case <-ctx.Done():
			return
		case <-pending:
		}
		if !d.wait(ctx, pending) {
			return
		}
		err := runner.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			hog.From(ctx).Error().Err(err).Msg(`rebuild failed`)
		}
		if d.notify != nil {
			d.notify.Reload(ctx, category)
		}
	}
}

// wait lets a burst of requests settle, then takes any request that arrived meanwhile so it is served by the coming
// rerun.  It reports false if ctx ended first.
func (d *Dispatcher) wait(ctx context.Context, pending <-chan struct{}) bool {
	if d.settle > 0 {
		timer := time.NewTimer(d.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}
	select {
	case <-pending:
	default:
	}
	return true
}
