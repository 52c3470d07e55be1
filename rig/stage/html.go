package stage

import (
	"context"
	"path/filepath"

	"github.com/swdunlop/assetrig-go/rig/include"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var htmlMinifier = func() *minify.M {
	m := minify.New()
	m.Add(`text/html`, &html.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	return m
}()

func htmlSteps(prof profile.Profile) []Step {
	inc := include.New()
	steps := []Step{{
		Name: `include`,
		Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := inc.Expand(filepath.FromSlash(f.Source), f.Data)
			f.Data = data
			return f, err
		}),
	}}
	if prof.MinifyHTML {
		steps = append(steps, Step{
			Name: `minify`,
			Apply: each(func(_ context.Context, f File) (File, error) {
				data, err := htmlMinifier.Bytes(`text/html`, f.Data)
				f.Data = data
				return f, err
			}),
		})
	}
	return steps
}
