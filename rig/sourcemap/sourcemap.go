// Package sourcemap concatenates generated code while keeping each part's source map, and inlines source maps as
// data URLs.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// A Part is one chunk of generated code and, optionally, its source map.
type Part struct {
	Code []byte
	Map  []byte // a version 3 source map in JSON; nil if the part has no map
}

type index struct {
	Version  int       `json:"version"`
	File     string    `json:"file,omitempty"`
	Sections []section `json:"sections"`
}

type section struct {
	Offset offset          `json:"offset"`
	Map    json.RawMessage `json:"map"`
}

type offset struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Concat joins the parts with sep and returns the joined code and an index source map whose sections point at the
// maps of the parts.  Parts without a map get no section.
func Concat(file string, sep []byte, parts ...Part) (code []byte, sourceMap []byte, err error) {
	var buf bytes.Buffer
	idx := index{Version: 3, File: file, Sections: []section{}}
	var line, col int
	for i, part := range parts {
		if i > 0 {
			buf.Write(sep)
			line, col = advance(line, col, sep)
		}
		if part.Map != nil {
			if !json.Valid(part.Map) {
				return nil, nil, fmt.Errorf(`part %d has an invalid source map`, i)
			}
			idx.Sections = append(idx.Sections, section{offset{line, col}, json.RawMessage(part.Map)})
		}
		buf.Write(part.Code)
		line, col = advance(line, col, part.Code)
	}
	sourceMap, err = json.Marshal(idx)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), sourceMap, nil
}

// advance moves a zero based line and column, with columns counted in UTF-16 code units, past text.
func advance(line, col int, text []byte) (int, int) {
	for len(text) > 0 {
		r, n := utf8.DecodeRune(text)
		text = text[n:]
		if r == '\n' {
			line, col = line+1, 0
			continue
		}
		col += utf16.RuneLen(r)
	}
	return line, col
}

// A Syntax selects the comment style used to reference an inline map.
type Syntax int

const (
	JS Syntax = iota
	CSS
)

const urlPrefix = `sourceMappingURL=data:application/json;charset=utf-8;base64,`

// Inline appends a comment to code that embeds the source map as a data URL.
func Inline(code, sourceMap []byte, syntax Syntax) []byte {
	var buf bytes.Buffer
	buf.Grow(len(code) + len(sourceMap)*4/3 + 64)
	buf.Write(code)
	if len(code) > 0 && code[len(code)-1] != '\n' {
		buf.WriteByte('\n')
	}
	enc := base64.StdEncoding.EncodeToString(sourceMap)
	switch syntax {
	case CSS:
		buf.WriteString(`/*# ` + urlPrefix + enc + " */\n")
	default:
		buf.WriteString(`//# ` + urlPrefix + enc + "\n")
	}
	return buf.Bytes()
}

// HasReference reports whether code already contains a sourceMappingURL comment.
func HasReference(code []byte) bool {
	return bytes.Contains(code, []byte(`# sourceMappingURL=`))
}
