// Package watcher reports changes to files under one or more directory trees.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/swdunlop/html-go/hog"

	rigglob "github.com/swdunlop/assetrig-go/rig/glob"
)

// Start a watcher with the provided options.
func Start(ctx context.Context, options ...Option) (Interface, error) {
	wr := &watcher{ctx: ctx}
	for _, option := range options {
		err := option(wr)
		if err != nil {
			return nil, err
		}
	}
	err := wr.start()
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// An Option is a function that can manipulate a watcher during construction
type Option func(*watcher) error

// Include specifies one or more path patterns, such as "src/js/**/*.js", to include in the watch.
// If no patterns are specified, all files not excluded are included.
func Include(patterns ...string) Option {
	return func(wr *watcher) error {
		for _, pattern := range patterns {
			p, err := rigglob.Compile(pattern)
			if err != nil {
				return err
			}
			wr.includes = append(wr.includes, p)
		}
		return nil
	}
}

// Exclude specifies one or more file name patterns to exclude from the watch.  These are matched against the
// name of the file and of each directory containing it, so "node_modules" excludes everything beneath one.
// If no patterns are specified, only files starting with a dot are excluded.
// If a file matches both an include and an exclude pattern, it is excluded.
func Exclude(patterns ...string) Option {
	return func(wr *watcher) (err error) {
		wr.excludes, err = appendPatterns(wr.excludes, patterns...)
		return
	}
}

func appendPatterns(seq []glob.Glob, patterns ...string) ([]glob.Glob, error) {
	for _, pattern := range patterns {
		rx, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf(`%w in %q`, err, pattern)
		}
		seq = append(seq, rx)
	}
	return seq, nil
}

// Directory specifies one or more directories to watch recursively.
// If no directories are specified, the current working directory is watched.  For a directory that does not exist yet,
// its nearest existing ancestor is watched until it is created.
func Directory(paths ...string) Option {
	return func(wr *watcher) error {
		wr.directories = append(wr.directories, paths...)
		return nil
	}
}

// Buffer sets how many events may be waiting to be received before the watcher stops reading from the OS.
func Buffer(n int) Option {
	return func(wr *watcher) error {
		wr.buffer = n
		return nil
	}
}

// An Event describes a change to a file.
type Event struct {
	Path string // using "/" as a separator
	Op   fsnotify.Op
}

// Interface describes the watcher interface
type Interface interface {
	Events() <-chan Event
	Shutdown()
}

type watcher struct {
	ctx         context.Context
	includes    []*rigglob.Pattern
	excludes    []glob.Glob
	directories []string
	buffer      int

	roots   []string // trees watched recursively
	missing []string // directories waiting to be created

	fsnotify   *fsnotify.Watcher
	eventCh    chan Event    // sent when the watcher has observed a change
	shutdownCh chan struct{} // closed when the watcher should shut down
	doneCh     chan struct{} // closed when the watcher is done
}

func (wr *watcher) start() (err error) {
	wr.fsnotify, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if len(wr.directories) == 0 {
		wr.directories = []string{`.`}
	}
	if len(wr.excludes) == 0 {
		wr.excludes = []glob.Glob{glob.MustCompile(`.*`, '/')}
	}
	if wr.buffer <= 0 {
		wr.buffer = 64
	}
	for _, dir := range wr.directories {
		err := wr.watchBase(filepath.Clean(dir))
		if err != nil {
			wr.fsnotify.Close()
			return err
		}
	}
	wr.eventCh = make(chan Event, wr.buffer)
	wr.shutdownCh = make(chan struct{})
	wr.doneCh = make(chan struct{})
	go wr.process()
	return nil
}

// watchBase watches dir recursively or, if it does not exist, the nearest ancestor that does.
func (wr *watcher) watchBase(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		wr.roots = append(wr.roots, dir)
		return wr.addTree(dir)
	case err == nil:
		return fmt.Errorf(`%q is not a directory`, dir)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	wr.missing = append(wr.missing, dir)
	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		info, err := os.Stat(parent)
		if err == nil && info.IsDir() {
			hog.From(wr.ctx).Debug().Str(`dir`, dir).Str(`parent`, parent).Msg(`waiting for directory`)
			return wr.fsnotify.Add(parent)
		}
		if filepath.Dir(parent) == parent {
			hog.From(wr.ctx).Warn().Str(`dir`, dir).Msg(`not watching missing directory`)
			return nil
		}
	}
}

// retry watches any missing directory that has been created since, or a nearer ancestor of it.
func (wr *watcher) retry() {
	missing := wr.missing
	wr.missing = nil
	for _, dir := range missing {
		err := wr.watchBase(dir)
		if err != nil {
			hog.From(wr.ctx).Warn().Err(err).Str(`dir`, dir).Msg(`watch error`)
		}
	}
}

func (wr *watcher) underRoot(name string) bool {
	for _, root := range wr.roots {
		if root == `.` || name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (wr *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && wr.excluded(info.Name()) {
			return filepath.SkipDir
		}
		return wr.fsnotify.Add(path)
	})
}

func (wr *watcher) Events() <-chan Event {
	return wr.eventCh
}

func (wr *watcher) Shutdown() {
	select {
	case <-wr.shutdownCh:
	default:
		close(wr.shutdownCh)
	}
	<-wr.doneCh
}

func (wr *watcher) process() {
	defer close(wr.doneCh)
	defer close(wr.eventCh)
	defer wr.fsnotify.Close()
	for {
		select {
		case <-wr.shutdownCh:
			return
		case <-wr.ctx.Done():
			return
		case err, ok := <-wr.fsnotify.Errors:
			if !ok {
				return
			}
			hog.From(wr.ctx).Warn().Err(err).Msg(`watch error`)
		case event, ok := <-wr.fsnotify.Events:
			if !ok {
				return
			}
			wr.processNotification(event)
		}
	}
}

func (wr *watcher) processNotification(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// creating a new directory should not issue an event, but we should watch it and anything already in it.
			name := filepath.Clean(event.Name)
			if wr.underRoot(name) && !wr.excluded(info.Name()) {
				_ = wr.addTree(name)
			}
			if len(wr.missing) > 0 {
				wr.retry()
			}
			return
		}
		wr.issueEvent(event)
	} else if event.Has(fsnotify.Write) {
		wr.issueEvent(event)
	} else if event.Has(fsnotify.Remove) {
		_ = wr.fsnotify.Remove(event.Name)
		wr.issueEvent(event)
	} else if event.Has(fsnotify.Rename) {
		// the new name arrives as a Create.
		_ = wr.fsnotify.Remove(event.Name)
		wr.issueEvent(event)
	}
}

func (wr *watcher) issueEvent(event fsnotify.Event) {
	name := rigglob.Clean(event.Name)
	if !wr.shouldInclude(name) {
		return
	}
	select {
	case <-wr.shutdownCh:
	case <-wr.ctx.Done():
	case wr.eventCh <- Event{Path: name, Op: event.Op}:
	}
}

func (wr *watcher) shouldInclude(name string) bool {
	included := len(wr.includes) == 0
	for _, p := range wr.includes {
		if p.Match(name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for dir := name; dir != `.` && dir != `/` && dir != ``; dir = filepath.ToSlash(filepath.Dir(dir)) {
		if wr.excluded(filepath.Base(dir)) {
			return false
		}
	}
	return true
}

func (wr *watcher) excluded(name string) bool {
	if name == `.` || name == `..` {
		return false
	}
	for _, rx := range wr.excludes {
		if rx.Match(name) {
			return true
		}
	}
	return false
}
