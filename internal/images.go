package internal

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

// coverSizes are the three variants spec.md §4.7's cover pipeline produces
// from one source image, widths in pixels, height scaled proportionally.
var coverSizes = map[string]uint{
	"small":  100,
	"medium": 300,
	"large":  600,
}

// ResizeCover decodes src (jpeg/png/gif, whatever the source provider
// served), produces small/medium/large JPEG variants, and returns them
// keyed by size name. Source format is auto-detected; output is always
// JPEG, matching what /covers/:isbn/:size serves regardless of the
// original format.
func ResizeCover(src []byte) (map[string][]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode cover image: %w", err)
	}

	out := make(map[string][]byte, len(coverSizes))
	for name, width := range coverSizes {
		resized := resize.Resize(width, 0, img, resize.Lanczos3)
		buf := bytes.NewBuffer(nil)
		if err := jpeg.Encode(buf, resized, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("encode %s variant (source format %s): %w", name, format, err)
		}
		out[name] = buf.Bytes()
	}
	return out, nil
}
