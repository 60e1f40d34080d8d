package media

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/camden-git/photopipeline/config"
	"github.com/camden-git/photopipeline/logger"
)

// BaseName is the unique file stem shared by every variant of one upload
type BaseName struct {
	id uuid.UUID
}

func NewBaseName() (BaseName, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return BaseName{}, fmt.Errorf("failed to generate UUID for base name: %w", err)
	}
	return BaseName{id: id}, nil
}

// ParseBaseName accepts the stem of an existing variant filename
func ParseBaseName(s string) (BaseName, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BaseName{}, fmt.Errorf("invalid base name '%s': %w", s, err)
	}
	return BaseName{id: id}, nil
}

func (b BaseName) String() string { return b.id.String() }

func (b BaseName) IsZero() bool { return b.id == uuid.Nil }

// Filename returns the base name with ext appended
func (b BaseName) Filename(ext string) string { return b.id.String() + ext }

// VersionSet holds the store-relative paths of the variants of one upload.
// Thumbnail keeps the in-memory thumbnail so callers can derive a placeholder
// without reading it back from disk.
type VersionSet struct {
	BaseName        BaseName
	ThumbnailPath   string
	DisplayPath     string
	WatermarkedPath string

	Thumbnail image.Image
}

// VersionGenerationError reports which variant could not be produced
type VersionGenerationError struct {
	Variant AssetType
	Err     error
}

func (e *VersionGenerationError) Error() string {
	return fmt.Sprintf("failed to generate %s version: %v", e.Variant, e.Err)
}

func (e *VersionGenerationError) Unwrap() error { return e.Err }

// VersionGenerator produces the derived raster variants of an upload. Output
// depends only on the source pixels and the site settings.
type VersionGenerator struct {
	store    Store
	settings config.SiteSettings
	log      *logger.Logger
}

func NewVersionGenerator(store Store, settings config.SiteSettings, log *logger.Logger) *VersionGenerator {
	return &VersionGenerator{store: store, settings: settings, log: log.WithComponent("media.versions")}
}

// Generate resizes img into the thumbnail, display and watermarked variants
// and saves them as <baseName><ext>. Variants keep the aspect ratio and are
// never larger than the source. On failure every variant written by this
// call is removed.
func (g *VersionGenerator) Generate(ctx context.Context, img image.Image, baseName BaseName) (VersionSet, error) {
	set := VersionSet{BaseName: baseName}
	if baseName.IsZero() {
		return set, &VersionGenerationError{Variant: AssetTypeUnknown, Err: fmt.Errorf("empty base name")}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return set, &VersionGenerationError{Variant: AssetTypeUnknown, Err: fmt.Errorf("invalid source dimensions: %dx%d", b.Dx(), b.Dy())}
	}

	ext := g.settings.OutputExtension()
	quality := g.settings.ImageQuality
	filename := baseName.Filename(ext)

	var written []string
	fail := func(variant AssetType, err error) (VersionSet, error) {
		for _, p := range written {
			if delErr := g.store.Delete(p); delErr != nil {
				g.log.Warn("failed to remove partial variant", "path", p, "error", delErr)
			}
		}
		return VersionSet{BaseName: baseName}, &VersionGenerationError{Variant: variant, Err: err}
	}

	thumb := imaging.Fit(img, g.settings.ThumbnailMaxSize, g.settings.ThumbnailMaxSize, imaging.Lanczos)
	display := imaging.Fit(img, g.settings.DisplayMaxSize, g.settings.DisplayMaxSize, imaging.Lanczos)

	var marked image.Image = display
	if g.settings.WatermarkMaxSize != g.settings.DisplayMaxSize {
		marked = imaging.Fit(img, g.settings.WatermarkMaxSize, g.settings.WatermarkMaxSize, imaging.Lanczos)
	}
	if g.settings.WatermarkEnabled {
		var err error
		marked, err = ApplyWatermark(marked, g.settings.WatermarkText, g.settings.WatermarkOpacity)
		if err != nil {
			return fail(AssetTypeWatermarked, err)
		}
	}

	variants := []struct {
		assetType AssetType
		img       image.Image
		target    *string
	}{
		{AssetTypeThumbnail, thumb, &set.ThumbnailPath},
		{AssetTypeDisplay, display, &set.DisplayPath},
		{AssetTypeWatermarked, marked, &set.WatermarkedPath},
	}

	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return fail(v.assetType, err)
		}
		relPath, err := SaveEncoded(g.store, v.assetType, filename, v.img, ext, quality)
		if err != nil {
			return fail(v.assetType, err)
		}
		written = append(written, relPath)
		*v.target = relPath
	}

	set.Thumbnail = thumb
	g.log.Debug("generated versions",
		"base_name", baseName.String(),
		"source", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"thumbnail", fmt.Sprintf("%dx%d", thumb.Bounds().Dx(), thumb.Bounds().Dy()),
		"display", fmt.Sprintf("%dx%d", display.Bounds().Dx(), display.Bounds().Dy()),
	)
	return set, nil
}
