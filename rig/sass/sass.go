// Package sass compiles stylesheets written in Sass (SCSS syntax) to CSS.
//
// Compilation is delegated to a Compiler; Command runs the Dart Sass command line tool, reading the stylesheet
// from stdin.
package sass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// A Compiler turns a Sass stylesheet into CSS.
type Compiler interface {
	Compile(ctx context.Context, src []byte, opts Options) ([]byte, error)
}

// Options control a single compilation.
type Options struct {
	LoadPaths []string // directories searched for imports
	SourceMap bool     // embed a source map, with sources, in the output
	Style     string   // "expanded" (default) or "compressed"
}

// A CompileError reports a problem with the stylesheet itself, such as a syntax error, as opposed to a failure to
// run the compiler.
type CompileError struct {
	Message string
}

func (err *CompileError) Error() string {
	return `sass: ` + err.Message
}

// IsCompileError reports whether err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var target *CompileError
	return errors.As(err, &target)
}

// Command compiles stylesheets by running the Dart Sass executable.
type Command struct {
	Path string   // defaults to "sass"
	Args []string // extra arguments
}

// Dart Sass exits with 65 for stylesheet errors, following sysexits.
const exitDataErr = 65

// Compile implements Compiler.
func (cmd Command) Compile(ctx context.Context, src []byte, opts Options) ([]byte, error) {
	bin := cmd.Path
	if bin == `` {
		bin = `sass`
	}
	style := opts.Style
	if style == `` {
		style = `expanded`
	}
	args := []string{`--stdin`, `--no-color`, `--style=` + style}
	for _, dir := range opts.LoadPaths {
		args = append(args, `--load-path=`+dir)
	}
	if opts.SourceMap {
		args = append(args, `--embed-source-map`, `--embed-sources`)
	} else {
		args = append(args, `--no-source-map`)
	}
	args = append(args, cmd.Args...)

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, bin, args...)
	c.Stdin = bytes.NewReader(src)
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == exitDataErr {
		return nil, &CompileError{Message: strings.TrimSpace(stderr.String())}
	}
	if stderr.Len() > 0 {
		return nil, fmt.Errorf(`%w running %s: %s`, err, bin, strings.TrimSpace(stderr.String()))
	}
	return nil, fmt.Errorf(`%w running %s`, err, bin)
}
