package stage

import (
	"context"
	"fmt"

	"github.com/swdunlop/assetrig-go/rig/imagemin"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/sprite"
)

func svgSteps(p paths.Paths) []Step {
	bundle := p.Bundle
	return []Step{
		{Name: `optimize`, Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := imagemin.MinifySVG(f.Data)
			f.Data = data
			return f, err
		})},
		{Name: `sprite`, Apply: func(_ context.Context, files []File) ([]File, error) {
			if len(files) == 0 {
				return nil, nil
			}
			icons := make([]sprite.Icon, len(files))
			for i, f := range files {
				icons[i] = sprite.Icon{ID: sprite.ID(f.Path), Data: f.Data}
			}
			data, err := sprite.Pack(icons)
			if err != nil {
				return nil, fmt.Errorf(`%w while packing %q`, err, bundle)
			}
			return []File{{Path: bundle, Source: files[0].Source, Data: data}}, nil
		}},
	}
}

func imageSteps() []Step {
	return []Step{
		{Name: `optimize`, Apply: each(func(_ context.Context, f File) (File, error) {
			data, err := imagemin.Optimize(f.Path, f.Data)
			f.Data = data
			return f, err
		})},
	}
}
