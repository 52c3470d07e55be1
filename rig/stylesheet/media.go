package stylesheet

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// GroupMedia merges top level @media blocks that share the same query and moves them to the end of the stylesheet.
// Queries that only set a min-width come first, smallest first, followed by queries that only set a max-width,
// largest first, followed by all other queries in the order they first appeared.
func GroupMedia(src []byte) ([]byte, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	var rest bytes.Buffer
	var groups []*mediaGroup
	byQuery := make(map[string]*mediaGroup)

	for i := 0; i < len(tokens); {
		end := statementEnd(tokens, i)
		stmt := tokens[i:end]
		i = end

		query, body, ok := media(stmt)
		if !ok {
			rest.Write(render(stmt))
			continue
		}
		key := normalizeQuery(query)
		g := byQuery[key]
		if g == nil {
			g = &mediaGroup{query: key, order: len(groups)}
			byQuery[key] = g
			groups = append(groups, g)
		}
		g.bodies = append(g.bodies, bytes.TrimSpace(render(body)))
	}
	if len(groups) == 0 {
		return src, nil
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].less(groups[j]) })
	out := bytes.TrimRight(rest.Bytes(), " \t\r\n")
	var buf bytes.Buffer
	buf.Write(out)
	for _, g := range groups {
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(`@media `)
		buf.WriteString(g.query)
		buf.WriteString(" {\n")
		for _, body := range g.bodies {
			buf.WriteString(`  `)
			buf.Write(body)
			buf.WriteByte('\n')
		}
		buf.WriteString(`}`)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// statementEnd returns the index just past the top level statement starting at i: either a block with its closing
// brace, a statement ending in a semicolon, or a run of insignificant tokens.
func statementEnd(tokens []token, i int) int {
	if insignificant(tokens[i].tt) {
		for i < len(tokens) && insignificant(tokens[i].tt) {
			i++
		}
		return i
	}
	depth := 0
	for ; i < len(tokens); i++ {
		switch tokens[i].tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
			if depth <= 0 {
				return i + 1
			}
		case css.SemicolonToken:
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

// media splits a statement like "@media screen { a { b: c } }" into its query and the tokens inside the braces.
func media(stmt []token) (query string, body []token, ok bool) {
	if len(stmt) == 0 || stmt[0].tt != css.AtKeywordToken || !strings.EqualFold(string(stmt[0].data), `@media`) {
		return ``, nil, false
	}
	open := -1
	for i, tok := range stmt {
		if tok.tt == css.LeftBraceToken {
			open = i
			break
		}
	}
	last := len(stmt) - 1
	if open < 0 || stmt[last].tt != css.RightBraceToken {
		return ``, nil, false
	}
	return string(render(stmt[1:open])), stmt[open+1 : last], true
}

var spaceRx = regexp.MustCompile(`\s+`)

func normalizeQuery(query string) string {
	return strings.TrimSpace(spaceRx.ReplaceAllString(query, ` `))
}

type mediaGroup struct {
	query  string
	order  int
	bodies [][]byte
}

var (
	minWidthRx = regexp.MustCompile(`min-width:\s*([0-9.]+)`)
	maxWidthRx = regexp.MustCompile(`max-width:\s*([0-9.]+)`)
)

// rank returns 0 for min-width only queries, 1 for max-width only queries, and 2 for everything else, with the width.
func (g *mediaGroup) rank() (int, float64) {
	minW := minWidthRx.FindStringSubmatch(g.query)
	maxW := maxWidthRx.FindStringSubmatch(g.query)
	switch {
	case minW != nil && maxW == nil:
		w, _ := strconv.ParseFloat(minW[1], 64)
		return 0, w
	case maxW != nil && minW == nil:
		w, _ := strconv.ParseFloat(maxW[1], 64)
		return 1, -w
	default:
		return 2, 0
	}
}

func (g *mediaGroup) less(other *mediaGroup) bool {
	r1, w1 := g.rank()
	r2, w2 := other.rank()
	switch {
	case r1 != r2:
		return r1 < r2
	case r1 < 2 && w1 != w2:
		return w1 < w2
	default:
		return g.order < other.order
	}
}
