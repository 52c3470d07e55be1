// Package imagemin reduces the size of images.  Each format has its own optimizer; the optimized image is only used
// when it is actually smaller than the original.
package imagemin

import (
	"bytes"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

// An Optimizer rewrites an image in a smaller encoding.
type Optimizer interface {
	Optimize(src []byte) ([]byte, error)
}

// OptimizerFunc adapts a function to the Optimizer interface.
type OptimizerFunc func(src []byte) ([]byte, error)

// Optimize implements Optimizer.
func (fn OptimizerFunc) Optimize(src []byte) ([]byte, error) { return fn(src) }

// JPEGQuality is the quality used when re-encoding JPEG images.
const JPEGQuality = 82

// For returns the optimizer for a file name's extension, or nil if the format is copied as is.
func For(name string) Optimizer {
	switch strings.ToLower(path.Ext(name)) {
	case `.png`:
		return OptimizerFunc(optimizePNG)
	case `.jpg`, `.jpeg`:
		return OptimizerFunc(optimizeJPEG)
	case `.gif`:
		return OptimizerFunc(optimizeGIF)
	case `.svg`:
		return OptimizerFunc(MinifySVG)
	default:
		return nil
	}
}

// Optimize optimizes src according to the extension of name and returns whichever of the original and the optimized
// image is smaller.
func Optimize(name string, src []byte) ([]byte, error) {
	opt := For(name)
	if opt == nil {
		return src, nil
	}
	out, err := opt.Optimize(src)
	if err != nil {
		return nil, err
	}
	if len(out) >= len(src) {
		return src, nil
	}
	return out, nil
}

func optimizePNG(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeJPEG(src []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeGIF(src []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var svgMinifier = func() *minify.M {
	m := minify.New()
	m.AddFunc(`text/css`, css.Minify)
	m.Add(`image/svg+xml`, &svg.Minifier{})
	return m
}()

// MinifySVG removes comments, metadata and redundant syntax from an SVG document.
func MinifySVG(src []byte) ([]byte, error) {
	return svgMinifier.Bytes(`image/svg+xml`, src)
}
