package stage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sass"
)

// inliner stands in for Dart Sass: it replaces each @import with the imported file and fails on "{{".
type inliner struct{}

var importRx = regexp.MustCompile(`(?m)^[ \t]*@import[ \t]+["']([^"']+)["'];`)

func (inliner) Compile(_ context.Context, src []byte, opts sass.Options) ([]byte, error) {
	if bytes.Contains(src, []byte(`{{`)) {
		return nil, &sass.CompileError{Message: `expected "}".`}
	}
	var failure error
	out := importRx.ReplaceAllFunc(src, func(stmt []byte) []byte {
		name := string(importRx.FindSubmatch(stmt)[1])
		data, err := os.ReadFile(filepath.Join(opts.LoadPaths[0], filepath.FromSlash(name)))
		if err != nil {
			failure = err
		}
		return bytes.TrimSpace(data)
	})
	if failure != nil {
		return nil, failure
	}
	if opts.SourceMap {
		out = append(out, "\n/*# sourceMappingURL=data:application/json;base64,e30= */\n"...)
	}
	return out, nil
}

// site lays out a small project using the default registry in a new working directory.
func site(t *testing.T) {
	t.Chdir(t.TempDir())
	var logo bytes.Buffer
	require.NoError(t, png.Encode(&logo, image.NewGray(image.Rect(0, 0, 8, 8))))
	for name, data := range map[string]string{
		`src/views/index.html`:         "<html><body>\n<!-- nav -->\n@@header.html\n<main>  hi  </main>\n</body></html>\n",
		`src/views/header.html`:        `<header>Site</header>`,
		`src/styles/main.scss`:         "@import \"blocks/*.scss\";\nbody { font-size: 32px; }\n",
		`src/styles/blocks/reset.scss`: "* { margin: 0; }\n",
		`src/scripts/a.js`:             "function a() {\n  return 1;\n}\n",
		`src/scripts/b.js`:             "const b = window.b ?? a();\nconsole.log(b);\n",
		`src/svg/icons/home.svg`:       `<svg viewBox="0 0 8 8"><!-- x --><rect width="8" height="8"/></svg>`,
		`src/images/photos/logo.png`:   logo.String(),
		`src/fonts/body.woff2`:         "wOF2 not really a font",
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
	}
}

func build(t *testing.T, mode profile.Mode) {
	stages, err := All(paths.Default(), profile.For(mode), Compiler(inliner{}))
	require.NoError(t, err)
	for _, s := range stages {
		require.NoError(t, s.Run(context.Background()), s.Category())
	}
}

func read(t *testing.T, name string) string {
	data, err := os.ReadFile(filepath.FromSlash(name))
	require.NoError(t, err)
	return string(data)
}

func TestBuildNone(t *testing.T) {
	site(t)
	build(t, profile.None)

	page := read(t, `dist/index.html`)
	assert.Contains(t, page, "<!-- nav -->\n<header>Site</header>\n<main>  hi  </main>")
	assert.FileExists(t, `dist/header.html`)

	css := read(t, `dist/style.min.css`)
	assert.Equal(t, "* { margin: 0; }\nbody { font-size: 32px; }\n", css)

	js := read(t, `dist/script.min.js`)
	assert.Contains(t, js, `??`)
	assert.NotContains(t, js, `sourceMappingURL`)

	assert.Contains(t, read(t, `dist/images/sprite.svg`), `<symbol id="icons--home"`)
	assert.FileExists(t, `dist/images/photos/logo.png`)
	assert.Equal(t, "wOF2 not really a font", read(t, `dist/fonts/body.woff2`))
}

func TestBuildDev(t *testing.T) {
	site(t)
	build(t, profile.Dev)

	css := read(t, `dist/style.min.css`)
	assert.True(t, strings.HasPrefix(css, "* { margin: 0; }\nbody { font-size: 2rem; }\n"), css)
	assert.Equal(t, 1, strings.Count(css, `sourceMappingURL`))

	js := read(t, `dist/script.min.js`)
	i := strings.LastIndex(js, `//# sourceMappingURL=data:application/json;charset=utf-8;base64,`)
	require.GreaterOrEqual(t, i, 0, js)
	enc := strings.TrimSpace(js[i+len(`//# sourceMappingURL=data:application/json;charset=utf-8;base64,`):])
	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	var idx struct {
		Sections []struct {
			Map struct {
				Sources []string `json:"sources"`
			} `json:"map"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(raw, &idx))
	require.Len(t, idx.Sections, 2)
	assert.Equal(t, []string{`src/scripts/a.js`}, idx.Sections[0].Map.Sources)
	assert.Equal(t, []string{`src/scripts/b.js`}, idx.Sections[1].Map.Sources)
}

func TestBuildProd(t *testing.T) {
	site(t)
	build(t, profile.Prod)

	page := read(t, `dist/index.html`)
	assert.NotContains(t, page, `<!-- nav -->`)
	assert.NotContains(t, page, `  hi  `)
	assert.Contains(t, page, `<header>Site</header>`)

	css := read(t, `dist/style.min.css`)
	assert.NotContains(t, css, `sourceMappingURL`)
	assert.NotContains(t, css, "\n  ")
	assert.Contains(t, css, `2rem`)

	js := read(t, `dist/script.min.js`)
	assert.NotContains(t, js, `sourceMappingURL`)
	assert.NotContains(t, js, `??`)

	assert.NotContains(t, read(t, `dist/images/sprite.svg`), `<!--`)
}

func TestBuildIsRepeatable(t *testing.T) {
	site(t)
	snapshot := func() map[string]string {
		ret := map[string]string{}
		require.NoError(t, filepath.WalkDir(`dist`, func(name string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			ret[filepath.ToSlash(name)] = read(t, name)
			return nil
		}))
		return ret
	}
	for _, mode := range []profile.Mode{profile.Dev, profile.Prod} {
		build(t, mode)
		first := snapshot()
		build(t, mode)
		assert.Equal(t, first, snapshot(), mode.String())
	}
}

func TestCompileErrorLeavesOutput(t *testing.T) {
	site(t)
	build(t, profile.Dev)
	before := read(t, `dist/style.min.css`)

	require.NoError(t, os.WriteFile(`src/styles/main.scss`, []byte("body {{ color: red; }\n"), 0o644))
	s, err := New(paths.CSS, paths.Default(), profile.For(profile.Dev), Compiler(inliner{}))
	require.NoError(t, err)
	err = s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, sass.IsCompileError(err))
	var compileErr *sass.CompileError
	assert.True(t, errors.As(err, &compileErr))
	assert.Contains(t, err.Error(), `css: sass:`)
	assert.Equal(t, before, read(t, `dist/style.min.css`))
}

func TestSteps(t *testing.T) {
	reg := paths.Default()
	for _, tc := range []struct {
		category paths.Category
		mode     profile.Mode
		steps    []string
	}{
		{paths.HTML, profile.None, []string{`include`}},
		{paths.HTML, profile.Prod, []string{`include`, `minify`}},
		{paths.CSS, profile.None, []string{`concat`, `sass-glob`, `sass`}},
		{paths.CSS, profile.Dev, []string{`concat`, `sass-glob`, `sass`, `pxtorem`, `sourcemap`}},
		{paths.CSS, profile.Prod, []string{`concat`, `sass-glob`, `sass`, `group-media`, `pxtorem`, `prefix`, `minify`}},
		{paths.JS, profile.Dev, []string{`concat`, `sourcemap`}},
		{paths.JS, profile.Prod, []string{`concat`, `transpile`, `minify`}},
		{paths.SVG, profile.Prod, []string{`optimize`, `sprite`}},
		{paths.Image, profile.Dev, []string{`optimize`}},
		{paths.Font, profile.Prod, []string{}},
	} {
		s, err := New(tc.category, reg, profile.For(tc.mode), Compiler(inliner{}))
		require.NoError(t, err)
		assert.Equal(t, tc.steps, s.Steps(), `%s in %s`, tc.category, tc.mode)
		assert.Equal(t, tc.category, s.Category())
	}
}

func TestEmptySources(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, c := range []paths.Category{paths.JS, paths.SVG, paths.Image, paths.Font} {
		s, err := New(c, paths.Default(), profile.For(profile.Prod))
		require.NoError(t, err)
		require.NoError(t, s.Run(context.Background()), c)
	}
	assert.NoDirExists(t, `dist`)
}
