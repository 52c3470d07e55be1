// Package esbuild transforms JavaScript and CSS bundles with esbuild: lowering syntax, minifying, adding vendor
// prefixes, and producing source maps.
package esbuild

import (
	"bytes"
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Transform runs esbuild over src with the given options.  By default src is treated as JavaScript, no syntax is
// lowered and nothing is minified.
func Transform(src []byte, options ...Option) (Result, error) {
	var cfg config
	cfg.transform.Loader = esbuild.LoaderJS
	cfg.transform.Target = esbuild.ESNext
	cfg.transform.LogLevel = esbuild.LogLevelSilent
	for _, option := range options {
		option(&cfg)
	}
	ret := esbuild.Transform(string(src), cfg.transform)
	if len(ret.Errors) > 0 {
		return Result{}, &Error{Messages: ret.Errors}
	}
	return Result{Code: ret.Code, Map: ret.Map}, nil
}

// Result is the output of Transform.
type Result struct {
	Code []byte
	Map  []byte // only set by ExternalSourceMap
}

// Error reports the messages from a failed transform.
type Error struct {
	Messages []esbuild.Message
}

func (err *Error) Error() string {
	var buf bytes.Buffer
	for i, msg := range err.Messages {
		if i == 0 {
			fmt.Fprintf(&buf, "esbuild: ")
		} else {
			fmt.Fprintf(&buf, "\n   esbuild: ")
		}
		if msg.Location != nil {
			fmt.Fprintf(&buf, "%s:%d:%d: ", msg.Location.File, msg.Location.Line, msg.Location.Column)
		}
		buf.WriteString(strings.ReplaceAll(msg.Text, "\n", "\n            "))
	}
	return buf.String()
}

// Option is a function that can manipulate the esbuild API transform options structure.
type Option func(*config)

type config struct {
	transform esbuild.TransformOptions
}

// CSS treats the input as a stylesheet.
func CSS() Option {
	return func(cfg *config) { cfg.transform.Loader = esbuild.LoaderCSS }
}

// Sourcefile names the input in messages and source maps.
func Sourcefile(name string) Option {
	return func(cfg *config) { cfg.transform.Sourcefile = name }
}

// Target lowers JavaScript syntax that is newer than the target.
func Target(target esbuild.Target) Option {
	return func(cfg *config) { cfg.transform.Target = target }
}

// Engines limits output to features supported by the given browsers; for CSS this adds vendor prefixes they need.
func Engines(engines ...esbuild.Engine) Option {
	return func(cfg *config) { cfg.transform.Engines = append(cfg.transform.Engines, engines...) }
}

// Minify removes whitespace, shortens identifiers and simplifies syntax.  All comments are dropped, including legal
// comments.
func Minify() Option {
	return func(cfg *config) {
		cfg.transform.MinifyWhitespace = true
		cfg.transform.MinifySyntax = true
		cfg.transform.MinifyIdentifiers = true
		cfg.transform.LegalComments = esbuild.LegalCommentsNone
	}
}

// InlineSourceMap appends the source map to the output as a data URL comment.
func InlineSourceMap() Option {
	return func(cfg *config) {
		cfg.transform.Sourcemap = esbuild.SourceMapInline
		cfg.transform.SourcesContent = esbuild.SourcesContentInclude
	}
}

// ExternalSourceMap returns the source map in Result.Map instead of the output.
func ExternalSourceMap() Option {
	return func(cfg *config) {
		cfg.transform.Sourcemap = esbuild.SourceMapExternal
		cfg.transform.SourcesContent = esbuild.SourcesContentInclude
	}
}

// TransformOption returns an option that can manipulate the esbuild API transform options structure.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func TransformOption(fn func(*esbuild.TransformOptions)) Option {
	return func(cfg *config) { fn(&cfg.transform) }
}

// Browsers is the fixed browser support target: roughly the last two versions of each major browser.
var Browsers = []esbuild.Engine{
	{Name: esbuild.EngineChrome, Version: `128`},
	{Name: esbuild.EngineEdge, Version: `128`},
	{Name: esbuild.EngineFirefox, Version: `130`},
	{Name: esbuild.EngineSafari, Version: `17.5`},
	{Name: esbuild.EngineIOS, Version: `17.5`},
	{Name: esbuild.EngineOpera, Version: `112`},
}

// ES2015 is the syntax target that transpiled bundles are lowered to.
const ES2015 = esbuild.ES2015

// ESNext leaves JavaScript syntax as it is.
const ESNext = esbuild.ESNext
