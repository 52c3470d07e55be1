// Package include expands file inclusion directives in templates.
//
// With the default prefix, a template may contain:
//
//	@@include('partials/nav.html', {"title": "Home"})
//	@@header.html
//	@@title
//
// The first form includes a file with an optional JSON object of variables, the second is shorthand for an include
// without variables, and the third is replaced by a variable from the enclosing include.  Paths are relative to the
// including file unless a base path is configured.  Included files are expanded recursively.
package include

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// New returns a Processor with the given options.
func New(options ...Option) *Processor {
	p := &Processor{prefix: `@@`, read: os.ReadFile, maxDepth: 32}
	for _, option := range options {
		option(p)
	}
	return p
}

// An Option configures a Processor.
type Option func(*Processor)

// Prefix changes the directive prefix from "@@".
func Prefix(prefix string) Option {
	return func(p *Processor) { p.prefix = prefix }
}

// Basepath resolves included paths relative to dir instead of the including file.
func Basepath(dir string) Option {
	return func(p *Processor) { p.basepath = dir }
}

// Context provides variables to top level templates.
func Context(vars map[string]any) Option {
	return func(p *Processor) { p.vars = vars }
}

// ReadFile replaces the function used to read included files.
func ReadFile(fn func(string) ([]byte, error)) Option {
	return func(p *Processor) { p.read = fn }
}

// A Processor expands inclusion directives.
type Processor struct {
	prefix   string
	basepath string
	vars     map[string]any
	read     func(string) ([]byte, error)
	maxDepth int
}

// ErrCycle is returned when a file includes itself, directly or indirectly.
var ErrCycle = errors.New(`include cycle`)

// Expand processes the directives in src, which was read from file.
func (p *Processor) Expand(file string, src []byte) ([]byte, error) {
	return p.expand(file, src, p.vars, []string{filepath.Clean(file)})
}

var nameRx = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_./-]*`)

func (p *Processor) expand(file string, src []byte, vars map[string]any, stack []string) ([]byte, error) {
	prefix := []byte(p.prefix)
	var out bytes.Buffer
	for {
		i := bytes.Index(src, prefix)
		if i < 0 {
			out.Write(src)
			return out.Bytes(), nil
		}
		out.Write(src[:i])
		rest := src[i+len(prefix):]

		if bytes.HasPrefix(rest, []byte(`include(`)) {
			n, target, params, err := parseCall(rest[len(`include(`):])
			if err != nil {
				return nil, fmt.Errorf(`%w in %q`, err, file)
			}
			content, err := p.include(file, target, merge(vars, params), stack)
			if err != nil {
				return nil, err
			}
			out.Write(content)
			src = rest[len(`include(`)+n:]
			continue
		}

		name := strings.TrimRight(string(nameRx.Find(rest)), `.`)
		if name == `` {
			out.Write(prefix)
			src = rest
			continue
		}
		if v, ok := lookup(vars, name); ok {
			out.WriteString(format(v))
			src = rest[len(name):]
			continue
		}
		if filepath.Ext(name) != `` {
			content, err := p.include(file, name, vars, stack)
			if err != nil {
				return nil, err
			}
			out.Write(content)
			src = rest[len(name):]
			continue
		}
		// an unknown variable is left alone
		out.Write(prefix)
		src = rest
	}
}

func (p *Processor) include(from, target string, vars map[string]any, stack []string) ([]byte, error) {
	dir := p.basepath
	if dir == `` {
		dir = filepath.Dir(from)
	}
	file := filepath.Clean(filepath.Join(dir, filepath.FromSlash(target)))
	for _, it := range stack {
		if it == file {
			return nil, fmt.Errorf(`%w: %s`, ErrCycle, strings.Join(append(stack, file), ` -> `))
		}
	}
	if len(stack) >= p.maxDepth {
		return nil, fmt.Errorf(`includes nested deeper than %d in %q`, p.maxDepth, from)
	}
	data, err := p.read(file)
	if err != nil {
		return nil, fmt.Errorf(`%w while including from %q`, err, from)
	}
	return p.expand(file, data, vars, append(stack[:len(stack):len(stack)], file))
}

// parseCall parses the arguments of an include call after "include(", returning the number of bytes consumed
// including the closing parenthesis.
func parseCall(src []byte) (n int, target string, params map[string]any, err error) {
	n = skipSpace(src, 0)
	if n >= len(src) || (src[n] != '\'' && src[n] != '"') {
		return 0, ``, nil, errors.New(`include needs a quoted path`)
	}
	quote := src[n]
	end := bytes.IndexByte(src[n+1:], quote)
	if end < 0 {
		return 0, ``, nil, errors.New(`unterminated include path`)
	}
	target = string(src[n+1 : n+1+end])
	n = skipSpace(src, n+end+2)
	if n < len(src) && src[n] == ',' {
		dec := json.NewDecoder(bytes.NewReader(src[n+1:]))
		if err := dec.Decode(&params); err != nil {
			return 0, ``, nil, fmt.Errorf(`%w while parsing include variables`, err)
		}
		n = skipSpace(src, n+1+int(dec.InputOffset()))
	}
	if n >= len(src) || src[n] != ')' {
		return 0, ``, nil, errors.New(`include is missing ")"`)
	}
	return n + 1, target, params, nil
}

func skipSpace(src []byte, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
		i++
	}
	return i
}

func merge(vars, params map[string]any) map[string]any {
	if len(params) == 0 {
		return vars
	}
	ret := make(map[string]any, len(vars)+len(params))
	for k, v := range vars {
		ret[k] = v
	}
	for k, v := range params {
		ret[k] = v
	}
	return ret
}

// lookup resolves a dotted variable name like "page.title".
func lookup(vars map[string]any, name string) (any, bool) {
	var cur any = vars
	for _, key := range strings.Split(name, `.`) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func format(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ``
	default:
		js, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(js)
	}
}
