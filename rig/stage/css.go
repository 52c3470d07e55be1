package stage

import (
	"bytes"
	"context"

	"github.com/swdunlop/assetrig-go/rig/esbuild"
	"github.com/swdunlop/assetrig-go/rig/glob"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sass"
	"github.com/swdunlop/assetrig-go/rig/sourcemap"
	"github.com/swdunlop/assetrig-go/rig/stylesheet"
)

func cssSteps(p paths.Paths, prof profile.Profile, cfg *config) ([]Step, error) {
	// imports are resolved relative to the main stylesheet.
	main, err := glob.Compile(p.Source[len(p.Source)-1])
	if err != nil {
		return nil, err
	}
	loadDir := main.Base()
	bundle := p.Bundle
	compiler := cfg.compiler
	pxtorem := cfg.pxtorem

	steps := []Step{
		{Name: `concat`, Apply: concat(bundle, []byte("\n"))},
		{Name: `sass-glob`, Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := sass.ExpandGlobs(f.Data, loadDir)
			f.Data = data
			return f, err
		})},
		{Name: `sass`, Apply: each(func(ctx context.Context, f File) (File, error) {
			data, err := compiler.Compile(ctx, f.Data, sass.Options{
				LoadPaths: []string{loadDir},
				SourceMap: prof.Sourcemaps,
			})
			f.Data = data
			return f, err
		})},
	}
	if prof.GroupMedia {
		steps = append(steps, Step{Name: `group-media`, Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := stylesheet.GroupMedia(f.Data)
			f.Data = data
			return f, err
		})})
	}
	if prof.PxToRem {
		steps = append(steps, Step{Name: `pxtorem`, Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := pxtorem.Apply(f.Data)
			f.Data = data
			return f, err
		})})
	}
	if prof.Prefix {
		steps = append(steps, Step{Name: `prefix`, Apply: cssTransform(
			esbuild.CSS(), esbuild.Sourcefile(bundle), esbuild.Engines(esbuild.Browsers...),
		)})
	}
	if prof.MinifyCSS {
		steps = append(steps, Step{Name: `minify`, Apply: cssTransform(
			esbuild.CSS(), esbuild.Sourcefile(bundle), esbuild.Engines(esbuild.Browsers...), esbuild.Minify(),
		)})
	}
	if prof.Sourcemaps {
		steps = append(steps, Step{Name: `sourcemap`, Apply: each(func(_ context.Context, f File) (File, error) {
			if sourcemap.HasReference(f.Data) {
				return f, nil // the compiler embedded one already
			}
			ret, err := esbuild.Transform(f.Data, esbuild.CSS(), esbuild.Sourcefile(f.Source), esbuild.InlineSourceMap())
			f.Data = ret.Code
			return f, err
		})})
	}
	return steps, nil
}

func cssTransform(options ...esbuild.Option) func(context.Context, []File) ([]File, error) {
	return each(func(_ context.Context, f File) (File, error) {
		ret, err := esbuild.Transform(f.Data, options...)
		f.Data = ret.Code
		return f, err
	})
}

// concat joins every file into a single bundle named after the last (main) source.
func concat(bundle string, sep []byte) func(context.Context, []File) ([]File, error) {
	return func(_ context.Context, files []File) ([]File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		parts := make([][]byte, len(files))
		for i, f := range files {
			parts[i] = f.Data
		}
		return []File{{
			Path:   bundle,
			Source: files[len(files)-1].Source,
			Data:   bytes.Join(parts, sep),
		}}, nil
	}
}
