// Package sprite packs SVG icons into a single SVG document of <symbol> elements, so that a page can refer to each
// icon as `<use href="sprite.svg#icon-id">`.
package sprite

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// An Icon is the SVG source of one icon and the id it will have in the sprite.
type Icon struct {
	ID   string
	Data []byte
}

// ID derives a symbol id from a path relative to the icon directory: the extension is dropped and directory
// separators become "--", so "social/github.svg" becomes "social--github".
func ID(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, `/`, `--`)
}

// attributes on the root <svg> element that are carried over to its <symbol>.
var kept = []string{`viewBox`, `preserveAspectRatio`, `fill`, `stroke`, `class`, `style`}

// Pack builds a sprite containing the icons in the order given.  Duplicate ids are an error.
func Pack(icons []Icon) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">`)
	seen := make(map[string]struct{}, len(icons))
	for _, icon := range icons {
		if _, dup := seen[icon.ID]; dup {
			return nil, fmt.Errorf(`duplicate icon id %q`, icon.ID)
		}
		seen[icon.ID] = struct{}{}
		attrs, inner, err := split(icon.Data)
		if err != nil {
			return nil, fmt.Errorf(`%w in icon %q`, err, icon.ID)
		}
		buf.WriteString(`<symbol id="`)
		escape(&buf, icon.ID)
		buf.WriteByte('"')
		if _, ok := attrs[`viewBox`]; !ok {
			if w, h := attrs[`width`], attrs[`height`]; w != `` && h != `` {
				attrs[`viewBox`] = `0 0 ` + strings.TrimSuffix(w, `px`) + ` ` + strings.TrimSuffix(h, `px`)
			}
		}
		for _, name := range kept {
			if v, ok := attrs[name]; ok {
				buf.WriteString(` ` + name + `="`)
				escape(&buf, v)
				buf.WriteByte('"')
			}
		}
		buf.WriteByte('>')
		buf.Write(inner)
		buf.WriteString(`</symbol>`)
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}

// split finds the root <svg> element and returns its attributes and the raw bytes of its content.
func split(data []byte) (map[string]string, []byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	var (
		attrs map[string]string
		depth int
		start int64
	)
	for {
		offset := dec.InputOffset()
		tok, err := dec.RawToken()
		if err == io.EOF {
			return nil, nil, errors.New(`no <svg> element`)
		}
		if err != nil {
			return nil, nil, err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if attrs == nil {
				if tok.Name.Local != `svg` {
					return nil, nil, fmt.Errorf(`root element is <%s>, not <svg>`, tok.Name.Local)
				}
				attrs = make(map[string]string, len(tok.Attr))
				for _, attr := range tok.Attr {
					if attr.Name.Space == `` {
						attrs[attr.Name.Local] = attr.Value
					}
				}
				start = dec.InputOffset()
				continue
			}
			depth++
		case xml.EndElement:
			if attrs == nil {
				continue
			}
			if depth == 0 {
				return attrs, bytes.TrimSpace(data[start:offset]), nil
			}
			depth--
		}
	}
}

func escape(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}
