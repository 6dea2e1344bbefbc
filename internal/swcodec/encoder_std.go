//go:build !(turbojpeg && arm64)

package swcodec

import (
	"image"
	"image/jpeg"
	"io"
)

// encoder collects RGB strips into an image which is encoded with
// image/jpeg once complete.
type encoder struct {
	w       io.Writer
	quality int
	img     *image.RGBA
	yoffset int
}

func newEncoder(w io.Writer, quality, width, height int) (*encoder, error) {
	return &encoder{
		w:       w,
		quality: quality,
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

func (e *encoder) EncodePixels(pix []byte, lines int) {
	width := e.img.Rect.Dx()
	for y := 0; y < lines && e.yoffset+y < e.img.Rect.Dy(); y++ {
		dst := e.img.Pix[(e.yoffset+y)*e.img.Stride:]
		src := pix[y*3*width:]
		for x := 0; x < width; x++ {
			dst[4*x+0] = src[3*x+0]
			dst[4*x+1] = src[3*x+1]
			dst[4*x+2] = src[3*x+2]
			dst[4*x+3] = 0xff
		}
	}
	e.yoffset += lines
}

func (e *encoder) Flush() error {
	return jpeg.Encode(e.w, e.img, &jpeg.Options{
		Quality: e.quality,
	})
}
