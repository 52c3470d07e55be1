// Package flow composes named tasks into a graph that runs some tasks in sequence and others concurrently.
//
// A graph is built from four kinds of node:
//
//   - Task, a named leaf that does the work;
//   - Series, a barrier where each child starts only after the previous one succeeded;
//   - Parallel, a fan out that runs every child to completion and reports all of their errors;
//   - Linked, a fan out where the first child to fail cancels the rest.
//
// Tolerate wraps any node so that its failure is logged rather than returned.  Graphs have a String form, such as
// "series(clean, parallel(html, css))", which makes their shape easy to check without running anything.
package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
	"golang.org/x/sync/errgroup"
)

// A Node is a unit of work in a graph.
type Node interface {
	Run(ctx context.Context) error
	String() string
}

// Run executes a graph.
func Run(ctx context.Context, node Node) error {
	return node.Run(ctx)
}

// A Task is a named leaf.
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run implements Node.
func (t Task) Run(ctx context.Context) error {
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context { return z.Str(`task`, t.Name) })
	started := time.Now()
	hog.From(ctx).Debug().Msg(`task starting`)
	err := t.Fn(ctx)
	hog.From(ctx).Debug().Err(err).Dur(`elapsed`, time.Since(started)).Msg(`task finished`)
	return err
}

func (t Task) String() string { return t.Name }

// Series runs each node after the previous one succeeds, stopping at the first error.
type Series []Node

// Run implements Node.
func (seq Series) Run(ctx context.Context) error {
	for _, node := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := node.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (seq Series) String() string { return format(`series`, seq) }

// Parallel runs every node concurrently and waits for all of them.  A failure does not affect the other nodes; all
// errors are joined.
type Parallel []Node

// Run implements Node.
func (par Parallel) Run(ctx context.Context) error {
	errs := make([]error, len(par))
	var g errgroup.Group
	for i, node := range par {
		g.Go(func() error {
			errs[i] = node.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (par Parallel) String() string { return format(`parallel`, par) }

// Linked runs every node concurrently; when one fails the context passed to the others is cancelled.  The first
// error is returned.
type Linked []Node

// Run implements Node.
func (lnk Linked) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, node := range lnk {
		g.Go(func() error { return node.Run(ctx) })
	}
	return g.Wait()
}

func (lnk Linked) String() string { return format(`linked`, lnk) }

// Tolerate returns a node that logs an error from node and reports success, so that a Series continues past it.
func Tolerate(node Node) Node { return tolerate{node} }

type tolerate struct{ node Node }

func (t tolerate) Run(ctx context.Context) error {
	err := t.node.Run(ctx)
	if err != nil && ctx.Err() == nil {
		hog.From(ctx).Error().Err(err).Str(`task`, t.node.String()).Msg(`task failed`)
	}
	return nil
}

func (t tolerate) String() string { return `tolerate(` + t.node.String() + `)` }

// Tasks lists the names of the tasks in a graph in the order they are declared.
func Tasks(node Node) []string {
	var ret []string
	walk(node, func(t Task) { ret = append(ret, t.Name) })
	return ret
}

// Find returns the first task in a graph with the given name.
func Find(node Node, name string) (Task, bool) {
	var found Task
	var ok bool
	walk(node, func(t Task) {
		if !ok && t.Name == name {
			found, ok = t, true
		}
	})
	return found, ok
}

func walk(node Node, fn func(Task)) {
	switch node := node.(type) {
	case Task:
		fn(node)
	case Series:
		walkAll(node, fn)
	case Parallel:
		walkAll(node, fn)
	case Linked:
		walkAll(node, fn)
	case tolerate:
		walk(node.node, fn)
	}
}

func walkAll(nodes []Node, fn func(Task)) {
	for _, node := range nodes {
		walk(node, fn)
	}
}

func format(kind string, nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return kind + `(` + strings.Join(parts, `, `) + `)`
}
