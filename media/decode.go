package media

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// DecodeError reports a source file that could not be turned into pixels:
// missing, empty, corrupt, or in a format no registered decoder handles.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image '%s': %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errEmptyFile = errors.New("file is empty")

// DecodeFile opens path and decodes it, applying the EXIF orientation so
// every derived variant is upright
func DecodeFile(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, &DecodeError{Path: path, Err: errEmptyFile}
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())}
	}
	return img, nil
}
