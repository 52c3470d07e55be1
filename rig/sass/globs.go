package sass

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/swdunlop/assetrig-go/rig/glob"
)

var importRx = regexp.MustCompile(`(?m)^([ \t]*)@import[ \t]+(["'])([^"'\n]*[*?{][^"'\n]*)["'][ \t]*;`)

// ExpandGlobs replaces imports of glob patterns, like `@import "blocks/**/*.scss";`, with one import per matching
// file, in lexical order.  Patterns are relative to dir.  A pattern that matches nothing is removed.
func ExpandGlobs(src []byte, dir string) ([]byte, error) {
	var failure error
	out := importRx.ReplaceAllFunc(src, func(stmt []byte) []byte {
		if failure != nil {
			return stmt
		}
		m := importRx.FindSubmatch(stmt)
		indent, quote, pattern := string(m[1]), string(m[2]), string(m[3])
		matches, err := glob.Resolve(path.Join(glob.Clean(dir), pattern))
		if err != nil {
			failure = fmt.Errorf(`%w while expanding @import %q`, err, pattern)
			return stmt
		}
		var buf bytes.Buffer
		for i, match := range matches {
			if i > 0 {
				buf.WriteByte('\n')
			}
			rel := relTo(match.Path, dir)
			fmt.Fprintf(&buf, `%s@import %s%s%s;`, indent, quote, rel, quote)
		}
		return buf.Bytes()
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

func relTo(name, dir string) string {
	dir = glob.Clean(dir)
	if dir == `.` {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, dir), `/`)
}
