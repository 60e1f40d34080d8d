package media

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

const (
	ExtWebP = ".webp"
	ExtAVIF = ".avif"
	ExtJPEG = ".jpg"
	ExtPNG  = ".png"

	// encoder effort, 0 fastest
	webpMethod = 4
	avifSpeed  = 8
)

// Encode writes img to w in the format implied by ext at the given quality
// (1-100). Quality is ignored for png.
func Encode(w io.Writer, img image.Image, ext string, quality int) error {
	switch strings.ToLower(ext) {
	case ExtWebP:
		return webp.Encode(w, img, webp.Options{Quality: quality, Method: webpMethod})
	case ExtAVIF:
		return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: avifSpeed})
	case ExtJPEG, ".jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case ExtPNG:
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return fmt.Errorf("unsupported output extension '%s'", ext)
	}
}

// SaveEncoded streams the encoded image into the store through a pipe and
// returns the stored relative path
func SaveEncoded(store Store, assetType AssetType, filename string, img image.Image, ext string, quality int) (string, error) {
	reader, writer := io.Pipe()
	go func() {
		if err := Encode(writer, img, ext, quality); err != nil {
			writer.CloseWithError(fmt.Errorf("%s encoding failed: %w", assetType, err))
			return
		}
		writer.Close()
	}()

	savedRelPath, err := store.Save(assetType, "", filename, reader)
	// unblock the encoder if Save bailed out before draining the pipe
	reader.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return "", fmt.Errorf("failed to save %s via store: %w", assetType, err)
	}
	return savedRelPath, nil
}
