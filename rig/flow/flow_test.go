package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records the order in which tasks run.
type journal struct {
	sync.Mutex
	seen []string
}

func (j *journal) task(name string, err error) Task {
	return Task{Name: name, Fn: func(context.Context) error {
		j.Lock()
		j.seen = append(j.seen, name)
		j.Unlock()
		return err
	}}
}

func TestSeriesStopsAtFirstError(t *testing.T) {
	var j journal
	boom := errors.New(`boom`)
	err := Run(context.Background(), Series{j.task(`a`, nil), j.task(`b`, boom), j.task(`c`, nil)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{`a`, `b`}, j.seen)
}

func TestSeriesStopsWhenCancelled(t *testing.T) {
	var j journal
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Series{j.task(`a`, nil)}.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, j.seen)
}

func TestParallelRunsEverything(t *testing.T) {
	var j journal
	errA, errC := errors.New(`a failed`), errors.New(`c failed`)
	err := Parallel{j.task(`a`, errA), j.task(`b`, nil), j.task(`c`, errC)}.Run(context.Background())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.ElementsMatch(t, []string{`a`, `b`, `c`}, j.seen)

	assert.NoError(t, Parallel{j.task(`d`, nil)}.Run(context.Background()))
}

func TestLinkedCancelsSiblings(t *testing.T) {
	boom := errors.New(`boom`)
	stopped := make(chan struct{})
	err := Linked{
		Task{Name: `serve`, Fn: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}},
		Task{Name: `watch`, Fn: func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return boom
		}},
	}.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	default:
		t.Fatal(`sibling was not cancelled`)
	}
}

func TestTolerate(t *testing.T) {
	var j journal
	err := Series{
		Tolerate(j.task(`css`, errors.New(`syntax error`))),
		j.task(`serve`, nil),
	}.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{`css`, `serve`}, j.seen)
}

func TestStringAndTasks(t *testing.T) {
	var j journal
	graph := Series{
		j.task(`clean`, nil),
		Parallel{Tolerate(j.task(`build-html`, nil)), Tolerate(j.task(`build-css`, nil))},
		Linked{j.task(`watch`, nil), j.task(`serve`, nil)},
	}
	assert.Equal(t, `series(clean, parallel(tolerate(build-html), tolerate(build-css)), linked(watch, serve))`, graph.String())
	assert.Equal(t, []string{`clean`, `build-html`, `build-css`, `watch`, `serve`}, Tasks(graph))

	task, ok := Find(graph, `build-css`)
	require.True(t, ok)
	assert.Equal(t, `build-css`, task.Name)
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, []string{`build-css`}, j.seen)

	_, ok = Find(graph, `deploy`)
	assert.False(t, ok)
}
