// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/models"
)

// NewDB opens a migrated sqlite database in a temp dir
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "photos.db")
	db, err := database.InitGormDB(database.DriverSQLite, path, logger.Silent)
	require.NoError(tb, err)
	require.NoError(tb, database.AutoMigrateModels(db))
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Gradient renders a deterministic test picture: a diagonal gradient with a
// solid block whose color is given by accent.
func Gradient(w, h int, accent color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(255 * x / w),
				G: uint8(255 * y / h),
				B: uint8(255 * (x + y) / (w + h)),
				A: 255,
			})
		}
	}
	for y := h / 4; y < h/2; y++ {
		for x := w / 4; x < w/2; x++ {
			img.SetNRGBA(x, y, accent)
		}
	}
	return img
}

// Solid renders a single-color picture
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// WriteJPEG saves img as a JPEG at dir/name and returns the full path
func WriteJPEG(tb testing.TB, dir, name string, img image.Image) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(tb, imaging.Save(img, path, imaging.JPEGQuality(90)))
	return path
}

// CreatePhoto inserts a photo in processing state
func CreatePhoto(tb testing.TB, db *gorm.DB, filename string) *models.Photo {
	tb.Helper()
	photo := &models.Photo{OriginalFilename: filename, Status: models.StatusProcessing}
	require.NoError(tb, db.Create(photo).Error)
	return photo
}

func StringPtr(s string) *string {
	return &s
}
