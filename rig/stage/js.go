package stage

import (
	"context"

	"github.com/swdunlop/assetrig-go/rig/esbuild"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sourcemap"
)

// scripts are joined with an explicit statement separator so a file without a trailing semicolon cannot run into
// the next one.
var scriptSeparator = []byte(`;`)

func jsSteps(p paths.Paths, prof profile.Profile) []Step {
	bundle := p.Bundle
	steps := make([]Step, 0, 4)
	if prof.Sourcemaps {
		steps = append(steps, Step{Name: `concat`, Apply: concatMapped(bundle)})
	} else {
		steps = append(steps, Step{Name: `concat`, Apply: concat(bundle, scriptSeparator)})
	}

	target := esbuild.Target(esbuild.ESNext)
	if prof.Transpile {
		target = esbuild.Target(esbuild.ES2015)
		steps = append(steps, Step{Name: `transpile`, Apply: jsTransform(esbuild.Sourcefile(bundle), target)})
	}
	if prof.MinifyJS {
		steps = append(steps, Step{Name: `minify`, Apply: jsTransform(esbuild.Sourcefile(bundle), target, esbuild.Minify())})
	}
	if prof.Sourcemaps {
		steps = append(steps, Step{Name: `sourcemap`, Apply: each(func(_ context.Context, f File) (File, error) {
			if f.Map != nil {
				f.Data = sourcemap.Inline(f.Data, f.Map, sourcemap.JS)
				f.Map = nil
			}
			return f, nil
		})})
	}
	return steps
}

func jsTransform(options ...esbuild.Option) func(context.Context, []File) ([]File, error) {
	return each(func(_ context.Context, f File) (File, error) {
		ret, err := esbuild.Transform(f.Data, options...)
		f.Data = ret.Code
		return f, err
	})
}

// concatMapped transforms each script on its own to get a source map back to the original file, then joins the
// scripts and their maps.
func concatMapped(bundle string) func(context.Context, []File) ([]File, error) {
	return func(_ context.Context, files []File) ([]File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		parts := make([]sourcemap.Part, len(files))
		for i, f := range files {
			ret, err := esbuild.Transform(f.Data, esbuild.Sourcefile(f.Source), esbuild.ExternalSourceMap())
			if err != nil {
				return nil, err
			}
			parts[i] = sourcemap.Part{Code: ret.Code, Map: ret.Map}
		}
		code, m, err := sourcemap.Concat(bundle, scriptSeparator, parts...)
		if err != nil {
			return nil, err
		}
		return []File{{Path: bundle, Source: files[len(files)-1].Source, Data: code, Map: m}}, nil
	}
}
