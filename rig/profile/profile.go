// Package profile selects which optional build steps run for a build mode.
package profile

// A Mode is the build profile selected once when the process starts.
type Mode string

const (
	None Mode = ``     // no optional steps
	Dev  Mode = `dev`  // source maps, px to rem
	Prod Mode = `prod` // minification, prefixing, media query grouping, px to rem, transpiling
)

// ParseMode returns Dev or Prod for an exact match and None for anything else, including an empty string.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case Dev:
		return Dev
	case Prod:
		return Prod
	default:
		return None
	}
}

func (m Mode) String() string {
	if m == None {
		return `none`
	}
	return string(m)
}

// A Profile lists the optional steps that stages should include.
type Profile struct {
	Mode Mode

	Sourcemaps bool // inline source maps in the css and js bundles
	MinifyHTML bool // strip comments and collapse whitespace in pages
	GroupMedia bool // merge duplicate media query blocks
	PxToRem    bool // convert pixel units to rem
	Prefix     bool // add vendor prefixes for the browser target
	MinifyCSS  bool // minify the css bundle
	Transpile  bool // lower the js bundle to the syntax target
	MinifyJS   bool // minify the js bundle
}

// For returns the profile for a mode.
func For(mode Mode) Profile {
	switch mode {
	case Dev:
		return Profile{Mode: Dev, Sourcemaps: true, PxToRem: true}
	case Prod:
		return Profile{
			Mode:       Prod,
			MinifyHTML: true,
			GroupMedia: true,
			PxToRem:    true,
			Prefix:     true,
			MinifyCSS:  true,
			Transpile:  true,
			MinifyJS:   true,
		}
	default:
		return Profile{}
	}
}
