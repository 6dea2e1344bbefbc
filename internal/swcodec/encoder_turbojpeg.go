//go:build turbojpeg && arm64

package swcodec

import (
	"io"

	"github.com/stapelberg/turbojpeg/jpeg"
)

type encoder = jpeg.Encoder

func newEncoder(w io.Writer, quality, width, height int) (*encoder, error) {
	return jpeg.NewRGBEncoder(w, &jpeg.EncoderOptions{
		Quality: quality,
	}, width, height)
}
