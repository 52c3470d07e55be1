package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, Dev, ParseMode(`dev`))
	assert.Equal(t, Prod, ParseMode(`prod`))
	assert.Equal(t, None, ParseMode(``))
	assert.Equal(t, None, ParseMode(`production`))
	assert.Equal(t, None, ParseMode(`DEV`))
	assert.Equal(t, `none`, None.String())
	assert.Equal(t, `prod`, Prod.String())
}

func TestFor(t *testing.T) {
	assert.Equal(t, Profile{}, For(None))

	dev := For(Dev)
	assert.True(t, dev.Sourcemaps)
	assert.True(t, dev.PxToRem)
	assert.False(t, dev.MinifyCSS)
	assert.False(t, dev.MinifyJS)

	prod := For(Prod)
	assert.False(t, prod.Sourcemaps, `production builds never carry source maps`)
	assert.Equal(t, Profile{
		Mode:       Prod,
		MinifyHTML: true,
		GroupMedia: true,
		PxToRem:    true,
		Prefix:     true,
		MinifyCSS:  true,
		Transpile:  true,
		MinifyJS:   true,
	}, prod)
}
