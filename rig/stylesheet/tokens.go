// Package stylesheet implements post-processing passes over compiled CSS.
//
// Both passes work on the token stream from the tdewolff CSS lexer, which is lossless, so anything a pass does not
// rewrite is written back byte for byte.  That keeps line numbers stable for any source map embedded by the
// compiler.
package stylesheet

import (
	"bytes"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	data []byte
}

func tokenize(src []byte) ([]token, error) {
	lx := css.NewLexer(parse.NewInputBytes(src))
	var ret []token
	for {
		tt, data := lx.Next()
		if tt == css.ErrorToken {
			if err := lx.Err(); err != nil && err != io.EOF {
				return nil, err
			}
			return ret, nil
		}
		ret = append(ret, token{tt, bytes.Clone(data)})
	}
}

func render(tokens []token) []byte {
	var buf bytes.Buffer
	for _, tok := range tokens {
		buf.Write(tok.data)
	}
	return buf.Bytes()
}

func insignificant(tt css.TokenType) bool {
	return tt == css.WhitespaceToken || tt == css.CommentToken
}

// skip returns the index of the first significant token at or after i.
func skip(tokens []token, i int) int {
	for i < len(tokens) && insignificant(tokens[i].tt) {
		i++
	}
	return i
}
