package include

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func files(t *testing.T, content map[string]string) string {
	dir := t.TempDir()
	for name, data := range content {
		name = filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
	}
	return dir
}

func TestExpandShorthand(t *testing.T) {
	dir := files(t, map[string]string{
		`views/header.html`: `<header>site</header>`,
	})
	out, err := New().Expand(filepath.Join(dir, `views/index.html`), []byte("<body>\n@@header.html\n</body>"))
	require.NoError(t, err)
	assert.Equal(t, "<body>\n<header>site</header>\n</body>", string(out))
}

func TestExpandIncludeWithVariables(t *testing.T) {
	dir := files(t, map[string]string{
		`views/partials/title.html`: `<h1>@@title</h1><p>@@page.count items</p>@@missing`,
	})
	src := []byte(`@@include('partials/title.html', {"title": "Home", "page": {"count": 3}})!`)
	out, err := New().Expand(filepath.Join(dir, `views/index.html`), src)
	require.NoError(t, err)
	assert.Equal(t, `<h1>Home</h1><p>3 items</p>@@missing!`, string(out))
}

func TestExpandNested(t *testing.T) {
	dir := files(t, map[string]string{
		`a.html`:       `[a @@include("inner/b.html", {"x": "1"})]`,
		`inner/b.html`: `[b @@x @@c.html]`,
		`inner/c.html`: `[c @@x]`,
	})
	out, err := New().Expand(filepath.Join(dir, `index.html`), []byte(`@@a.html`))
	require.NoError(t, err)
	assert.Equal(t, `[a [b 1 [c 1]]]`, string(out))
}

func TestExpandBasepath(t *testing.T) {
	dir := files(t, map[string]string{
		`partials/footer.html`: `<footer/>`,
	})
	out, err := New(Basepath(filepath.Join(dir, `partials`))).Expand(`views/index.html`, []byte(`@@footer.html`))
	require.NoError(t, err)
	assert.Equal(t, `<footer/>`, string(out))
}

func TestExpandContextAndPrefix(t *testing.T) {
	p := New(Prefix(`%%`), Context(map[string]any{`name`: `rig`}))
	out, err := p.Expand(`index.html`, []byte(`hello %%name, @@name`))
	require.NoError(t, err)
	assert.Equal(t, `hello rig, @@name`, string(out))
}

func TestExpandCycle(t *testing.T) {
	dir := files(t, map[string]string{
		`a.html`: `@@b.html`,
		`b.html`: `@@a.html`,
	})
	_, err := New().Expand(filepath.Join(dir, `a.html`), []byte(`@@b.html`))
	assert.ErrorIs(t, err, ErrCycle)
}

func TestExpandMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := New().Expand(filepath.Join(dir, `index.html`), []byte(`@@include('nope.html')`))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = New().Expand(filepath.Join(dir, `index.html`), []byte(`@@include(nope.html)`))
	assert.Error(t, err)
}

func TestExpandReadFile(t *testing.T) {
	read := func(name string) ([]byte, error) {
		return []byte(`<` + filepath.Base(name) + `>`), nil
	}
	out, err := New(ReadFile(read)).Expand(`index.html`, []byte(`x @@nav.html y`))
	require.NoError(t, err)
	assert.Equal(t, `x <nav.html> y`, string(out))
}
