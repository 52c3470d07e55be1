// Package paths is the registry of asset categories: where each category's sources are, which files should
// trigger a rebuild when they change, and where the output is written.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/swdunlop/assetrig-go/rig/glob"
	"gopkg.in/yaml.v3"
)

// A Category identifies a kind of asset.
type Category string

const (
	HTML  Category = `html`
	CSS   Category = `css`
	JS    Category = `js`
	SVG   Category = `svg`
	Image Category = `img`
	Font  Category = `font`
)

// Categories lists every category in the order stages are declared.
var Categories = []Category{HTML, CSS, JS, SVG, Image, Font}

// ErrUnknownCategory is returned when a category name is not one of Categories.
var ErrUnknownCategory = errors.New(`unknown asset category`)

// ParseCategory converts a name like "css" into a Category.
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return ``, fmt.Errorf(`%w %q`, ErrUnknownCategory, name)
}

// Paths describes the sources, watch patterns and destination of one category.
type Paths struct {
	Source []string `yaml:"src"`
	Watch  []string `yaml:"watch"`
	Dest   string   `yaml:"dest"`

	// Bundle is the name of the single output file for categories that concatenate or pack their sources.
	Bundle string `yaml:"bundle,omitempty"`
}

// A Registry maps each category to its paths.  A registry should not be modified after Validate succeeds.
type Registry struct {
	// Clean is the output root; it is removed entirely by the clean operation and every destination must be in it.
	Clean      string             `yaml:"clean"`
	Categories map[Category]Paths `yaml:"categories"`
	StyleLibs  []string           `yaml:"styleLibs"`
	ScriptLibs []string           `yaml:"scriptLibs"`
}

// Default returns the standard layout, with sources under "src" and output under "dist".
func Default() *Registry {
	return &Registry{
		Clean: `dist`,
		Categories: map[Category]Paths{
			HTML: {
				Source: []string{`src/views/*.html`},
				Watch:  []string{`src/**/*.html`},
				Dest:   `dist/`,
			},
			CSS: {
				Source: []string{`src/styles/main.scss`},
				Watch:  []string{`src/styles/**/*.scss`},
				Dest:   `dist/`,
				Bundle: `style.min.css`,
			},
			JS: {
				Source: []string{`src/scripts/*.js`},
				Watch:  []string{`src/scripts/**/*.js`},
				Dest:   `dist/`,
				Bundle: `script.min.js`,
			},
			SVG: {
				Source: []string{`src/svg/**/*.svg`},
				Watch:  []string{`src/svg/**/*.svg`},
				Dest:   `dist/images/`,
				Bundle: `sprite.svg`,
			},
			Image: {
				Source: []string{`src/images/**/*.{jpg,png,svg,gif,ico}`},
				Watch:  []string{`src/images/**/*.{jpg,png,svg,gif,ico}`},
				Dest:   `dist/images/`,
			},
			Font: {
				Source: []string{`src/fonts/**/*.{ttf,woff,woff2}`},
				Watch:  []string{`src/fonts/**/*.{woff,woff2}`},
				Dest:   `dist/fonts`,
			},
		},
	}
}

// Load reads a YAML file over the default registry.  Each category present in the file replaces the default for that
// category entirely.  The result is validated.
func Load(file string) (*Registry, error) {
	reg := Default()
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var overlay Registry
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf(`%w while parsing %q`, err, file)
	}
	if overlay.Clean != `` {
		reg.Clean = overlay.Clean
	}
	for c, p := range overlay.Categories {
		reg.Categories[c] = p
	}
	if overlay.StyleLibs != nil {
		reg.StyleLibs = overlay.StyleLibs
	}
	if overlay.ScriptLibs != nil {
		reg.ScriptLibs = overlay.ScriptLibs
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf(`%w in %q`, err, file)
	}
	return reg, nil
}

// Rebase returns a copy of the registry with every relative path joined to root.
func (reg *Registry) Rebase(root string) *Registry {
	join := func(p string) string {
		if p == `` || path.IsAbs(p) || filepath.IsAbs(p) {
			return p
		}
		return path.Join(filepath.ToSlash(root), p)
	}
	joinAll := func(seq []string) []string {
		if seq == nil {
			return nil
		}
		ret := make([]string, len(seq))
		for i, p := range seq {
			ret[i] = join(p)
		}
		return ret
	}
	ret := &Registry{
		Clean:      join(reg.Clean),
		Categories: make(map[Category]Paths, len(reg.Categories)),
		StyleLibs:  joinAll(reg.StyleLibs),
		ScriptLibs: joinAll(reg.ScriptLibs),
	}
	for c, p := range reg.Categories {
		ret.Categories[c] = Paths{
			Source: joinAll(p.Source),
			Watch:  joinAll(p.Watch),
			Dest:   join(p.Dest),
			Bundle: p.Bundle,
		}
	}
	return ret
}

// Lookup returns the paths for a category.
func (reg *Registry) Lookup(c Category) (Paths, error) {
	p, ok := reg.Categories[c]
	if !ok {
		return Paths{}, fmt.Errorf(`%w %q`, ErrUnknownCategory, c)
	}
	return p, nil
}

// Validate checks that every category is completely configured.  Any problem is a configuration error and should
// stop the process before anything is built.
func (reg *Registry) Validate() error {
	if reg.Clean == `` {
		return errors.New(`no clean directory configured`)
	}
	clean := glob.Clean(reg.Clean)
	for c := range reg.Categories {
		if _, err := ParseCategory(string(c)); err != nil {
			return err
		}
	}
	for _, c := range Categories {
		p, ok := reg.Categories[c]
		if !ok {
			return fmt.Errorf(`category %q is not configured`, c)
		}
		if len(p.Source) == 0 {
			return fmt.Errorf(`category %q has no source patterns`, c)
		}
		if len(p.Watch) == 0 {
			return fmt.Errorf(`category %q has no watch patterns`, c)
		}
		if p.Dest == `` {
			return fmt.Errorf(`category %q has no destination`, c)
		}
		if !within(glob.Clean(p.Dest), clean) {
			return fmt.Errorf(`category %q destination %q is outside of %q`, c, p.Dest, reg.Clean)
		}
		switch c {
		case CSS, JS, SVG:
			if p.Bundle == `` || strings.ContainsAny(p.Bundle, `/\`) {
				return fmt.Errorf(`category %q needs a bundle file name, got %q`, c, p.Bundle)
			}
		}
		for _, seq := range [][]string{p.Source, p.Watch} {
			for _, pattern := range seq {
				if _, err := glob.Compile(pattern); err != nil {
					return fmt.Errorf(`category %q: %w`, c, err)
				}
			}
		}
	}
	for _, lib := range append(append([]string(nil), reg.StyleLibs...), reg.ScriptLibs...) {
		if _, err := glob.Compile(lib); err != nil {
			return fmt.Errorf(`library: %w`, err)
		}
	}
	return nil
}

// Sources returns the source patterns for a category, including any libraries that precede them.
func (reg *Registry) Sources(c Category) []string {
	p := reg.Categories[c]
	var libs []string
	switch c {
	case CSS:
		libs = reg.StyleLibs
	case JS:
		libs = reg.ScriptLibs
	}
	ret := make([]string, 0, len(libs)+len(p.Source))
	ret = append(ret, libs...)
	return append(ret, p.Source...)
}

func within(name, dir string) bool {
	return name == dir || dir == `.` || strings.HasPrefix(name, dir+`/`)
}
