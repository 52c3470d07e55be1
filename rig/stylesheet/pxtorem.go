package stylesheet

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// PxToRem converts pixel lengths in declarations to rem.
type PxToRem struct {
	RootValue     float64  // pixels per rem
	Precision     int      // decimal places kept
	MinPixelValue float64  // lengths below this are left alone
	Props         []string // properties to convert; "*" converts all
}

// DefaultPxToRem returns the conversion used by stylesheet stages: a 16px root, five decimal places, lengths below
// 2px untouched, and only font related properties converted.
func DefaultPxToRem() PxToRem {
	return PxToRem{
		RootValue:     16,
		Precision:     5,
		MinPixelValue: 2,
		Props:         []string{`font`, `font-size`, `line-height`, `letter-spacing`, `word-spacing`},
	}
}

// Apply rewrites src.  Selectors, at-rule preludes such as media queries, strings, and urls are never changed; nor
// is an uppercase "PX" unit, which is the conventional way to opt a length out of conversion.
func (cfg PxToRem) Apply(src []byte) ([]byte, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	start := 0
	for i, tok := range tokens {
		switch tok.tt {
		case css.SemicolonToken, css.RightBraceToken:
			cfg.declaration(tokens[start:i])
			start = i + 1
		case css.LeftBraceToken:
			start = i + 1
		}
	}
	cfg.declaration(tokens[start:])
	return render(tokens), nil
}

// declaration converts the value of a statement if it is a declaration of a matching property.
func (cfg PxToRem) declaration(stmt []token) {
	i := skip(stmt, 0)
	if i >= len(stmt) || stmt[i].tt != css.IdentToken {
		return
	}
	prop := strings.ToLower(string(stmt[i].data))
	j := skip(stmt, i+1)
	if j >= len(stmt) || stmt[j].tt != css.ColonToken {
		return
	}
	if !cfg.matches(prop) {
		return
	}
	for k := j + 1; k < len(stmt); k++ {
		if stmt[k].tt == css.DimensionToken {
			stmt[k].data = cfg.convert(stmt[k].data)
		}
	}
}

func (cfg PxToRem) matches(prop string) bool {
	for _, it := range cfg.Props {
		if it == `*` || it == prop {
			return true
		}
	}
	return false
}

func (cfg PxToRem) convert(dim []byte) []byte {
	if !bytes.HasSuffix(dim, []byte(`px`)) {
		return dim
	}
	num := dim[:len(dim)-2]
	px, err := strconv.ParseFloat(string(num), 64)
	if err != nil {
		return dim
	}
	if math.Abs(px) < cfg.MinPixelValue {
		return dim
	}
	scale := math.Pow(10, float64(cfg.Precision))
	rem := math.Round(px/cfg.RootValue*scale) / scale
	if rem == 0 {
		return []byte(`0`)
	}
	return []byte(strconv.FormatFloat(rem, 'f', -1, 64) + `rem`)
}
