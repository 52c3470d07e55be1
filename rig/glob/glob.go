// Package glob resolves file path patterns such as "src/images/**/*.{png,jpg}" against the file system.
//
// Patterns always use "/" as a separator.  A "**" segment matches zero or more directories, so
// "src/svg/**/*.svg" matches both "src/svg/a.svg" and "src/svg/icons/b.svg".  Every pattern has a base, the
// longest leading run of segments without any glob syntax; matches are reported relative to that base so
// that directory structure can be preserved when files are copied to a destination.
package glob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	gobwas "github.com/gobwas/glob"
)

// A Pattern is a compiled file path pattern.
type Pattern struct {
	source  string
	base    string
	literal bool
	globs   []gobwas.Glob
}

// Compile parses a pattern.
func Compile(pattern string) (*Pattern, error) {
	clean := Clean(pattern)
	if clean == `` || clean == `.` {
		return nil, fmt.Errorf(`empty pattern %q`, pattern)
	}
	p := &Pattern{source: clean, base: baseOf(clean), literal: !hasMeta(clean)}
	for _, variant := range variants(clean) {
		g, err := gobwas.Compile(variant, '/')
		if err != nil {
			return nil, fmt.Errorf(`%w in %q`, err, pattern)
		}
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the cleaned pattern.
func (p *Pattern) String() string { return p.source }

// Base returns the directory that all matches of the pattern are found under.
func (p *Pattern) Base() string { return p.base }

// Literal is true if the pattern contains no glob syntax and therefore names exactly one file.
func (p *Pattern) Literal() bool { return p.literal }

// Match reports whether the path matches the pattern.  The path is cleaned and converted to use "/" first.
func (p *Pattern) Match(name string) bool {
	name = Clean(name)
	for _, g := range p.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Rel returns the path of name relative to the pattern's base.
func (p *Pattern) Rel(name string) string {
	name = Clean(name)
	if p.base == `.` {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, p.base), `/`)
}

// A Match is a file found by Resolve.
type Match struct {
	Path string // the path of the file, using "/" separators.
	Rel  string // the path relative to the base of the pattern that matched it.
}

// Resolve finds all regular files matching any of the patterns.  Files are returned in pattern order, then in
// lexical order; a file that matches more than one pattern is only returned for the first.  A literal pattern that
// does not exist is an error, just as a missing file would be; a glob that matches nothing is not.
func Resolve(patterns ...string) ([]Match, error) {
	var ret []Match
	seen := make(map[string]struct{})
	for _, source := range patterns {
		p, err := Compile(source)
		if err != nil {
			return nil, err
		}
		matches, err := p.resolve()
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, dup := seen[m.Path]; dup {
				continue
			}
			seen[m.Path] = struct{}{}
			ret = append(ret, m)
		}
	}
	return ret, nil
}

func (p *Pattern) resolve() ([]Match, error) {
	if p.literal {
		info, err := os.Stat(filepath.FromSlash(p.source))
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf(`%q is a directory`, p.source)
		}
		return []Match{{Path: p.source, Rel: path.Base(p.source)}}, nil
	}

	var ret []Match
	err := filepath.WalkDir(filepath.FromSlash(p.base), func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name = filepath.ToSlash(name)
		if p.Match(name) {
			ret = append(ret, Match{Path: name, Rel: p.Rel(name)})
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return ret, err
}

// Clean converts a path or pattern to use "/" and removes redundant elements.
func Clean(name string) string {
	if name == `` {
		return ``
	}
	return path.Clean(filepath.ToSlash(name))
}

// Bases returns the distinct bases of the patterns, omitting any base that is nested inside another.
func Bases(patterns ...*Pattern) []string {
	all := make([]string, 0, len(patterns))
	for _, p := range patterns {
		all = append(all, p.Base())
	}
	sort.SliceStable(all, func(i, j int) bool { return len(all[i]) < len(all[j]) })
	var ret []string
	for _, base := range all {
		covered := false
		for _, it := range ret {
			if within(base, it) {
				covered = true
				break
			}
		}
		if !covered {
			ret = append(ret, base)
		}
	}
	sort.Strings(ret)
	return ret
}

// within reports whether name is dir or is inside dir.
func within(name, dir string) bool {
	if dir == `.` || name == dir {
		return true
	}
	return strings.HasPrefix(name, dir+`/`)
}

func hasMeta(s string) bool { return strings.ContainsAny(s, `*?[{\`) }

func baseOf(pattern string) string {
	segments := strings.Split(pattern, `/`)
	if !hasMeta(pattern) {
		return path.Dir(pattern)
	}
	var base []string
	for _, seg := range segments {
		if hasMeta(seg) {
			break
		}
		base = append(base, seg)
	}
	if len(base) == 0 {
		return `.`
	}
	if base[0] == `` { // absolute pattern
		if len(base) == 1 {
			return `/`
		}
	}
	return strings.Join(base, `/`)
}

// variants expands each "**" segment into both itself and nothing, since gobwas requires the separators around
// "**" to be present.
func variants(pattern string) []string {
	segments := strings.Split(pattern, `/`)
	seqs := [][]string{nil}
	for i, seg := range segments {
		next := make([][]string, 0, len(seqs)*2)
		for _, prefix := range seqs {
			next = append(next, append(slices.Clone(prefix), seg))
			if seg == `**` && i < len(segments)-1 {
				next = append(next, slices.Clone(prefix))
			}
		}
		seqs = next
	}
	ret := make([]string, len(seqs))
	for i, seq := range seqs {
		ret[i] = strings.Join(seq, `/`)
	}
	return ret
}
