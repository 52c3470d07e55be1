package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcat(t *testing.T) {
	code, m, err := Concat(`bundle.js`, []byte(`;`),
		Part{Code: []byte("a();\nb();\n"), Map: []byte(`{"version":3,"sources":["a.js"],"mappings":"AAAA"}`)},
		Part{Code: []byte(`c();`)},
		Part{Code: []byte("d(\"é😀\");"), Map: []byte(`{"version":3,"sources":["d.js"],"mappings":"AAAA"}`)},
		Part{Code: []byte(`e();`), Map: []byte(`{"version":3,"sources":["e.js"],"mappings":"AAAA"}`)},
	)
	require.NoError(t, err)
	assert.Equal(t, "a();\nb();\n;c();;d(\"é😀\");;e();", string(code))

	var idx struct {
		Version  int    `json:"version"`
		File     string `json:"file"`
		Sections []struct {
			Offset struct{ Line, Column int } `json:"offset"`
			Map    struct {
				Sources []string `json:"sources"`
			} `json:"map"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(m, &idx))
	assert.Equal(t, 3, idx.Version)
	assert.Equal(t, `bundle.js`, idx.File)
	require.Len(t, idx.Sections, 3)
	assert.Equal(t, []string{`a.js`}, idx.Sections[0].Map.Sources)
	assert.Equal(t, 0, idx.Sections[0].Offset.Line)
	assert.Equal(t, 0, idx.Sections[0].Offset.Column)
	assert.Equal(t, 2, idx.Sections[1].Offset.Line)
	assert.Equal(t, 6, idx.Sections[1].Offset.Column)
	// d("é😀"); is 9 UTF-16 code units, the emoji counting twice.
	assert.Equal(t, 2, idx.Sections[2].Offset.Line)
	assert.Equal(t, 6+9+1, idx.Sections[2].Offset.Column)
}

func TestConcatInvalidMap(t *testing.T) {
	_, _, err := Concat(`x.js`, nil, Part{Code: []byte(`x`), Map: []byte(`{`)})
	assert.Error(t, err)
}

func TestInline(t *testing.T) {
	m := []byte(`{"version":3}`)
	js := Inline([]byte(`a();`), m, JS)
	require.True(t, HasReference(js))
	lines := strings.Split(strings.TrimSuffix(string(js), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `a();`, lines[0])
	enc, ok := strings.CutPrefix(lines[1], `//# sourceMappingURL=data:application/json;charset=utf-8;base64,`)
	require.True(t, ok, lines[1])
	dec, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	assert.Equal(t, m, dec)

	css := Inline([]byte("a{}\n"), m, CSS)
	assert.True(t, strings.HasPrefix(string(css), "a{}\n/*# sourceMappingURL=data:application/json;"))
	assert.True(t, strings.HasSuffix(string(css), " */\n"))
	assert.False(t, HasReference([]byte(`a{}`)))
}
