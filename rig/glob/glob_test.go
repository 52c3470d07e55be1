package glob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatch(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		name    string
		match   bool
	}{
		{`src/svg/**/*.svg`, `src/svg/a.svg`, true},
		{`src/svg/**/*.svg`, `src/svg/icons/b.svg`, true},
		{`src/svg/**/*.svg`, `src/svg/icons/deep/c.svg`, true},
		{`src/svg/**/*.svg`, `src/svg/a.png`, false},
		{`src/views/*.html`, `src/views/index.html`, true},
		{`src/views/*.html`, `src/views/partials/header.html`, false},
		{`src/**/*.html`, `src/views/partials/header.html`, true},
		{`src/images/**/*.{jpg,png}`, `src/images/a/b.png`, true},
		{`src/images/**/*.{jpg,png}`, `src/images/a/b.gif`, false},
		{`src/styles/main.scss`, `./src/styles/main.scss`, true},
		{`**/*.js`, `app.js`, true},
		{`**/*.js`, `src/scripts/app.js`, true},
	} {
		p, err := Compile(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.match, p.Match(tc.name), `%q against %q`, tc.name, tc.pattern)
	}
}

func TestPatternBase(t *testing.T) {
	assert.Equal(t, `src/svg`, MustCompile(`src/svg/**/*.svg`).Base())
	assert.Equal(t, `src/views`, MustCompile(`src/views/*.html`).Base())
	assert.Equal(t, `src/styles`, MustCompile(`src/styles/main.scss`).Base())
	assert.Equal(t, `.`, MustCompile(`**/*.js`).Base())
	assert.True(t, MustCompile(`src/styles/main.scss`).Literal())
	assert.False(t, MustCompile(`src/*.scss`).Literal())
	assert.Equal(t, `icons/a.svg`, MustCompile(`src/svg/**/*.svg`).Rel(`src/svg/icons/a.svg`))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(``)
	assert.Error(t, err)
	_, err = Compile(`.`)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, name := range []string{
		`src/images/b.png`,
		`src/images/a.png`,
		`src/images/icons/c.png`,
		`src/images/notes.txt`,
		`src/libs/reset.scss`,
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(name), 0o644))
	}

	matches, err := Resolve(`src/libs/reset.scss`, `src/images/**/*.png`, `src/images/a.png`)
	require.NoError(t, err)
	assert.Equal(t, []Match{
		{Path: `src/libs/reset.scss`, Rel: `reset.scss`},
		{Path: `src/images/a.png`, Rel: `a.png`},
		{Path: `src/images/b.png`, Rel: `b.png`},
		{Path: `src/images/icons/c.png`, Rel: `icons/c.png`},
	}, matches)

	matches, err = Resolve(`src/missing/**/*.png`)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = Resolve(`src/missing.scss`)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBases(t *testing.T) {
	assert.Equal(t, []string{`src`}, Bases(
		MustCompile(`src/styles/**/*.scss`),
		MustCompile(`src/**/*.html`),
		MustCompile(`src/scripts/**/*.js`),
	))
	assert.Equal(t, []string{`assets`, `src/scripts`}, Bases(
		MustCompile(`src/scripts/**/*.js`),
		MustCompile(`assets/*.css`),
		MustCompile(`src/scripts/vendor/*.js`),
	))
}
