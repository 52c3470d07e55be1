package dispatch

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/watcher"
)

type reloads chan paths.Category

func (r reloads) Reload(_ context.Context, c paths.Category) { r <- c }

func (r reloads) next(t *testing.T) paths.Category {
	t.Helper()
	select {
	case c := <-r:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal(`timed out waiting for a reload`)
		return ``
	}
}

func counter(n *atomic.Int32, err error) Runner {
	return RunnerFunc(func(context.Context) error {
		n.Add(1)
		return err
	})
}

// start runs d in the background and returns a function that stops it and waits for it to finish.
func start(t *testing.T, d *Dispatcher, events chan watcher.Event) func() {
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), events) }()
	return func() {
		close(events)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal(`dispatcher did not stop`)
		}
	}
}

func TestMatch(t *testing.T) {
	d, err := New(paths.Default(), map[paths.Category]Runner{
		paths.CSS: counter(new(atomic.Int32), nil),
		paths.JS:  counter(new(atomic.Int32), nil),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []paths.Category{paths.JS}, d.Match(`src/scripts/app.js`))
	assert.Equal(t, []paths.Category{paths.CSS}, d.Match(`src/styles/blocks/nav.scss`))
	assert.Empty(t, d.Match(`src/views/index.html`), `html has no runner`)
	assert.Empty(t, d.Match(`README.md`))
	assert.NotEmpty(t, d.Bindings())
}

func TestEventRerunsOnlyItsCategory(t *testing.T) {
	var js, css atomic.Int32
	notified := make(reloads, 8)
	d, err := New(paths.Default(), map[paths.Category]Runner{
		paths.JS:  counter(&js, nil),
		paths.CSS: counter(&css, nil),
	}, notified)
	require.NoError(t, err)

	events := make(chan watcher.Event, 1)
	stop := start(t, d, events)
	events <- watcher.Event{Path: `src/scripts/app.js`}
	assert.Equal(t, paths.JS, notified.next(t))
	stop()

	assert.Equal(t, int32(1), js.Load())
	assert.Equal(t, int32(0), css.Load())
	assert.Empty(t, notified)
}

func TestFailureStillNotifies(t *testing.T) {
	var css atomic.Int32
	notified := make(reloads, 8)
	d, err := New(paths.Default(), map[paths.Category]Runner{
		paths.CSS: counter(&css, errors.New(`expected "}"`)),
	}, notified)
	require.NoError(t, err)

	events := make(chan watcher.Event, 2)
	stop := start(t, d, events)
	events <- watcher.Event{Path: `src/styles/main.scss`}
	assert.Equal(t, paths.CSS, notified.next(t))
	events <- watcher.Event{Path: `src/styles/main.scss`}
	assert.Equal(t, paths.CSS, notified.next(t))
	stop()
	assert.Equal(t, int32(2), css.Load())
}

func TestBurstCoalesces(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 4)
	gate := make(chan struct{})
	notified := make(reloads, 8)
	d, err := New(paths.Default(), map[paths.Category]Runner{
		paths.JS: RunnerFunc(func(context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-gate
			return nil
		}),
	}, notified)
	require.NoError(t, err)

	events := make(chan watcher.Event)
	stop := start(t, d, events)
	events <- watcher.Event{Path: `src/scripts/a.js`}
	<-started
	for range 5 {
		events <- watcher.Event{Path: `src/scripts/b.js`}
	}
	close(gate)
	notified.next(t)
	notified.next(t)
	stop()
	assert.Equal(t, int32(2), runs.Load())
}

func TestSettleFoldsBurst(t *testing.T) {
	var js atomic.Int32
	notified := make(reloads, 8)
	d, err := New(paths.Default(), map[paths.Category]Runner{paths.JS: counter(&js, nil)}, notified,
		Settle(100*time.Millisecond))
	require.NoError(t, err)

	events := make(chan watcher.Event)
	stop := start(t, d, events)
	for range 3 {
		events <- watcher.Event{Path: `src/scripts/app.js`}
	}
	assert.Equal(t, paths.JS, notified.next(t))
	time.Sleep(300 * time.Millisecond)
	stop()
	assert.Equal(t, int32(1), js.Load())
	assert.Empty(t, notified)
}

func TestSettleOption(t *testing.T) {
	_, err := New(paths.Default(), nil, nil, Settle(-time.Second))
	assert.Error(t, err)
	d, err := New(paths.Default(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettle, d.settle)
}

func TestSaveRerunsOnce(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.MkdirAll(`src/scripts`, 0o755))
	require.NoError(t, os.MkdirAll(`src/styles`, 0o755))

	var js, css atomic.Int32
	notified := make(reloads, 16)
	d, err := New(paths.Default(), map[paths.Category]Runner{
		paths.JS: RunnerFunc(func(context.Context) error {
			js.Add(1)
			time.Sleep(30 * time.Millisecond)
			return nil
		}),
		paths.CSS: counter(&css, nil),
	}, notified)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wr, err := watcher.Start(ctx, watcher.Directory(`src`), watcher.Include(`src/scripts/**/*.js`, `src/styles/**/*.scss`))
	require.NoError(t, err)
	defer wr.Shutdown()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, wr.Events()) }()

	for i := range 3 {
		require.NoError(t, os.WriteFile(`src/scripts/app.js`, []byte(`console.log(`+string(rune('1'+i))+`)`), 0o644))
		assert.Equal(t, paths.JS, notified.next(t))
		time.Sleep(4 * DefaultSettle)
		assert.Equal(t, int32(i+1), js.Load(), `save %d`, i+1)
		assert.Empty(t, notified, `save %d`, i+1)
	}
	assert.Equal(t, int32(0), css.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`dispatcher did not stop`)
	}
}

func TestTrigger(t *testing.T) {
	var html atomic.Int32
	notified := make(reloads, 8)
	d, err := New(paths.Default(), map[paths.Category]Runner{paths.HTML: counter(&html, nil)}, notified)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Trigger(paths.CSS), paths.ErrUnknownCategory)
	require.NoError(t, d.Trigger(paths.HTML))
	require.NoError(t, d.Trigger(paths.HTML))

	stop := start(t, d, make(chan watcher.Event))
	assert.Equal(t, paths.HTML, notified.next(t))
	stop()
	assert.Equal(t, int32(1), html.Load())
}

func TestRunTwice(t *testing.T) {
	d, err := New(paths.Default(), map[paths.Category]Runner{paths.JS: counter(new(atomic.Int32), nil)}, nil)
	require.NoError(t, err)
	events := make(chan watcher.Event)
	stop := start(t, d, events)
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.running
	}, time.Second, time.Millisecond)
	assert.Error(t, d.Run(context.Background(), events))
	stop()
}
