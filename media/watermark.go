package media

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	watermarkFontOnce sync.Once
	watermarkFont     *truetype.Font
	watermarkFontErr  error
)

func loadWatermarkFont() (*truetype.Font, error) {
	watermarkFontOnce.Do(func() {
		watermarkFont, watermarkFontErr = truetype.Parse(goregular.TTF)
	})
	return watermarkFont, watermarkFontErr
}

// ApplyWatermark draws text in the bottom right corner of img. The text is
// sized relative to the shorter side so it reads the same at every variant
// size. opacity is clamped to [0, 1].
func ApplyWatermark(img image.Image, text string, opacity float64) (*image.NRGBA, error) {
	dst := imaging.Clone(img)
	if text == "" || opacity <= 0 {
		return dst, nil
	}
	if opacity > 1 {
		opacity = 1
	}

	f, err := loadWatermarkFont()
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark font: %w", err)
	}

	bounds := dst.Bounds()
	short := minInt(bounds.Dx(), bounds.Dy())
	size := maxFloat64(8, float64(short)/20)
	margin := maxInt(2, short/40)

	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	textWidth := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	face.Close()

	// render onto a transparent layer so the whole mark can be blended at once
	layer := image.NewNRGBA(image.Rect(0, 0, textWidth+2, textHeight+2))

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetClip(layer.Bounds())
	ctx.SetDst(layer)
	ctx.SetHinting(font.HintingNone)

	// a one pixel dark offset keeps light text legible on bright areas
	baseline := metrics.Ascent.Ceil()
	ctx.SetSrc(image.NewUniform(color.NRGBA{A: 160}))
	if _, err := ctx.DrawString(text, freetype.Pt(2, baseline+1)); err != nil {
		return nil, fmt.Errorf("failed to draw watermark shadow: %w", err)
	}
	ctx.SetSrc(image.NewUniform(color.White))
	if _, err := ctx.DrawString(text, freetype.Pt(1, baseline)); err != nil {
		return nil, fmt.Errorf("failed to draw watermark text: %w", err)
	}

	pos := image.Pt(
		bounds.Min.X+bounds.Dx()-layer.Bounds().Dx()-margin,
		bounds.Min.Y+bounds.Dy()-layer.Bounds().Dy()-margin,
	)
	if pos.X < bounds.Min.X {
		pos.X = bounds.Min.X
	}
	if pos.Y < bounds.Min.Y {
		pos.Y = bounds.Min.Y
	}

	return imaging.Overlay(dst, layer, pos, opacity), nil
}
