package media

import (
	"errors"
	"fmt"
	"image"

	redraw "golang.org/x/image/draw"
)

// placeholderSide is the edge of the square the image is downsampled to
// before averaging
const placeholderSide = 16

// ErrNoPlaceholderSource is returned when a photo has neither a thumbnail nor
// a display version on disk. Batch callers count it as a skip.
var ErrNoPlaceholderSource = errors.New("no placeholder source image")

// PlaceholderGenerator derives the dominant color shown while the real image
// loads
type PlaceholderGenerator struct {
	store Store
}

func NewPlaceholderGenerator(store Store) *PlaceholderGenerator {
	return &PlaceholderGenerator{store: store}
}

// DominantColor downsamples img and averages its opaque pixels into a
// "#rrggbb" string. A fully transparent image yields black.
func (g *PlaceholderGenerator) DominantColor(img image.Image) string {
	small := image.NewNRGBA(image.Rect(0, 0, placeholderSide, placeholderSide))
	redraw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), redraw.Src, nil)

	var r, gr, b, n uint64
	for i := 0; i < len(small.Pix); i += 4 {
		if small.Pix[i+3] == 0 {
			continue
		}
		r += uint64(small.Pix[i])
		gr += uint64(small.Pix[i+1])
		b += uint64(small.Pix[i+2])
		n++
	}
	if n == 0 {
		return "#000000"
	}
	return fmt.Sprintf("#%02x%02x%02x", (r+n/2)/n, (gr+n/2)/n, (b+n/2)/n)
}

// FromStore computes the dominant color from the stored thumbnail, falling
// back to the display version. Missing or empty paths are skipped; when no
// candidate exists on disk ErrNoPlaceholderSource is returned.
func (g *PlaceholderGenerator) FromStore(thumbnailPath, displayPath *string) (string, error) {
	for _, candidate := range []*string{thumbnailPath, displayPath} {
		if candidate == nil || *candidate == "" {
			continue
		}
		exists, err := g.store.Exists(*candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			continue
		}
		fullPath, err := g.store.GetFullPath(*candidate)
		if err != nil {
			return "", err
		}
		img, err := DecodeFile(fullPath)
		if err != nil {
			return "", err
		}
		return g.DominantColor(img), nil
	}
	return "", ErrNoPlaceholderSource
}
