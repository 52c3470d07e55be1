// Package stage builds the transform stage for each asset category.  A stage reads every source file matching the
// category's patterns, passes them through an ordered list of steps chosen by the build profile, and writes the
// result to the category's destination.
//
// Output is only written once every step has succeeded, so a failed run leaves the previous output in place.  Stages
// keep no state between runs.
package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/swdunlop/assetrig-go/rig/glob"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sass"
	"github.com/swdunlop/assetrig-go/rig/stylesheet"
	"github.com/swdunlop/html-go/hog"
)

// A File is a file moving through a stage.
type File struct {
	Path   string // output path relative to the destination, using "/"
	Source string // path the file was read from, or the main source of a bundle
	Data   []byte
	Map    []byte // source map for Data, waiting to be inlined
}

// A Step is one named transformation in a stage.
type Step struct {
	Name  string
	Apply func(ctx context.Context, files []File) ([]File, error)
}

// A Stage transforms the sources of one category.
type Stage struct {
	category paths.Category
	sources  []string
	dest     string
	steps    []Step
}

// New returns the stage for a category.  The registry should already be validated.
func New(category paths.Category, reg *paths.Registry, prof profile.Profile, options ...Option) (*Stage, error) {
	cfg := config{
		compiler: sass.Command{},
		pxtorem:  stylesheet.DefaultPxToRem(),
	}
	for _, option := range options {
		option(&cfg)
	}
	p, err := reg.Lookup(category)
	if err != nil {
		return nil, err
	}
	s := &Stage{
		category: category,
		sources:  reg.Sources(category),
		dest:     p.Dest,
	}
	switch category {
	case paths.HTML:
		s.steps = htmlSteps(prof)
	case paths.CSS:
		s.steps, err = cssSteps(p, prof, &cfg)
	case paths.JS:
		s.steps = jsSteps(p, prof)
	case paths.SVG:
		s.steps = svgSteps(p)
	case paths.Image:
		s.steps = imageSteps()
	case paths.Font:
		// fonts are copied as they are.
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// All returns a stage for every category, in the order of paths.Categories.
func All(reg *paths.Registry, prof profile.Profile, options ...Option) ([]*Stage, error) {
	ret := make([]*Stage, 0, len(paths.Categories))
	for _, c := range paths.Categories {
		s, err := New(c, reg, prof, options...)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

// An Option adjusts how stages are built.
type Option func(*config)

type config struct {
	compiler sass.Compiler
	pxtorem  stylesheet.PxToRem
}

// Compiler replaces the Sass compiler, which defaults to running "sass".
func Compiler(compiler sass.Compiler) Option {
	return func(cfg *config) { cfg.compiler = compiler }
}

// PxToRem replaces the px to rem settings.
func PxToRem(opts stylesheet.PxToRem) Option {
	return func(cfg *config) { cfg.pxtorem = opts }
}

// Category returns the category the stage builds.
func (s *Stage) Category() paths.Category { return s.category }

// Dest returns the destination directory.
func (s *Stage) Dest() string { return s.dest }

// Steps returns the names of the stage's steps in the order they run.
func (s *Stage) Steps() []string {
	ret := make([]string, len(s.steps))
	for i, step := range s.steps {
		ret[i] = step.Name
	}
	return ret
}

// Run reads the stage's sources, applies each step, and writes the output.
func (s *Stage) Run(ctx context.Context) error {
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context {
		return z.Str(`stage`, string(s.category))
	})
	started := time.Now()
	files, err := s.read()
	if err != nil {
		return fmt.Errorf(`%s: %w`, s.category, err)
	}
	sources := len(files)
	for _, step := range s.steps {
		files, err = step.Apply(ctx, files)
		if err != nil {
			return fmt.Errorf(`%s: %s: %w`, s.category, step.Name, err)
		}
	}
	if err := s.write(files); err != nil {
		return fmt.Errorf(`%s: %w`, s.category, err)
	}
	hog.From(ctx).Info().
		Int(`sources`, sources).
		Int(`outputs`, len(files)).
		Dur(`elapsed`, time.Since(started)).
		Msg(`stage built`)
	return nil
}

func (s *Stage) read() ([]File, error) {
	matches, err := glob.Resolve(s.sources...)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(filepath.FromSlash(m.Path))
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: m.Rel, Source: m.Path, Data: data})
	}
	return files, nil
}

func (s *Stage) write(files []File) error {
	for _, f := range files {
		name := filepath.Join(filepath.FromSlash(s.dest), filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(name, f.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// each adapts a function over a single file to a step over all files.
func each(fn func(ctx context.Context, f File) (File, error)) func(context.Context, []File) ([]File, error) {
	return func(ctx context.Context, files []File) ([]File, error) {
		for i, f := range files {
			out, err := fn(ctx, f)
			if err != nil {
				return nil, fmt.Errorf(`%w in %q`, err, f.Source)
			}
			files[i] = out
		}
		return files, nil
	}
}
