package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/photopipeline/models"
)

// GormPhotoRepository handles database operations for Photo entities
type GormPhotoRepository struct {
	DB *gorm.DB
}

func NewGormPhotoRepository(db *gorm.DB) *GormPhotoRepository {
	return &GormPhotoRepository{DB: db}
}

var _ PhotoRepository = (*GormPhotoRepository)(nil)

func (r *GormPhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	if photo.Status == "" {
		photo.Status = models.StatusProcessing
	}
	if err := r.DB.WithContext(ctx).Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create photo %s: %w", photo.OriginalFilename, err)
	}
	return nil
}

func (r *GormPhotoRepository) GetByID(ctx context.Context, id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.WithContext(ctx).First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	return &photo, nil
}

// GetByIDs returns the photos with the given ids ordered by id. Unknown ids
// are ignored.
func (r *GormPhotoRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Photo, error) {
	var photos []models.Photo
	if len(ids) == 0 {
		return photos, nil
	}
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to get photos by ids: %w", err)
	}
	return photos, nil
}

// update applies columns to one photo and reports a missing row as
// gorm.ErrRecordNotFound
func (r *GormPhotoRepository) update(ctx context.Context, id uint, what string, columns map[string]interface{}) error {
	result := r.DB.WithContext(ctx).Model(&models.Photo{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("failed to update %s for photo %d: %w", what, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update %s for photo %d: %w", what, id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *GormPhotoRepository) ClaimForProcessing(ctx context.Context, id uint) error {
	result := r.DB.WithContext(ctx).Model(&models.Photo{}).
		Where("id = ? AND status IN ?", id, []string{models.StatusProcessing, models.StatusFailed}).
		Updates(map[string]interface{}{
			"status":           models.StatusProcessing,
			"processing_stage": gorm.Expr("NULL"),
			"processing_error": gorm.Expr("NULL"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim photo %d for processing: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotClaimable
	}
	return nil
}

func (r *GormPhotoRepository) SetStage(ctx context.Context, id uint, stage string) error {
	return r.update(ctx, id, "processing stage", map[string]interface{}{
		"processing_stage": stage,
	})
}

func (r *GormPhotoRepository) SetDetails(ctx context.Context, id uint, details Details) error {
	columns := map[string]interface{}{
		"file_size": details.FileSize,
	}
	if details.Width != nil && details.Height != nil {
		columns["width"] = *details.Width
		columns["height"] = *details.Height
	}
	if details.TakenAt != nil {
		columns["taken_at"] = time.Unix(*details.TakenAt, 0).UTC()
	}
	if details.CameraMake != nil {
		columns["camera_make"] = *details.CameraMake
	}
	if details.CameraModel != nil {
		columns["camera_model"] = *details.CameraModel
	}
	if details.LensModel != nil {
		columns["lens_model"] = *details.LensModel
	}
	if details.FocalLength != nil {
		columns["focal_length"] = *details.FocalLength
	}
	if details.Aperture != nil {
		columns["aperture"] = *details.Aperture
	}
	if details.ShutterSpeed != nil {
		columns["shutter_speed"] = *details.ShutterSpeed
	}
	if details.ISO != nil {
		columns["iso"] = *details.ISO
	}
	return r.update(ctx, id, "details", columns)
}

func (r *GormPhotoRepository) SetVersions(ctx context.Context, id uint, paths VersionPaths) error {
	return r.update(ctx, id, "versions", map[string]interface{}{
		"display_path":     paths.DisplayPath,
		"thumbnail_path":   paths.ThumbnailPath,
		"watermarked_path": paths.WatermarkedPath,
	})
}

// SetHashes writes both fingerprints in one statement
func (r *GormPhotoRepository) SetHashes(ctx context.Context, id uint, fileHash, imageHash string) error {
	if fileHash == "" || imageHash == "" {
		return fmt.Errorf("refusing to store partial hashes for photo %d", id)
	}
	return r.update(ctx, id, "hashes", map[string]interface{}{
		"file_hash":  fileHash,
		"image_hash": imageHash,
	})
}

func (r *GormPhotoRepository) SetDominantColor(ctx context.Context, id uint, hex string) error {
	return r.update(ctx, id, "dominant color", map[string]interface{}{
		"dominant_color": hex,
	})
}

func (r *GormPhotoRepository) ApplyEnrichment(ctx context.Context, id uint, enrichment Enrichment) error {
	photo, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var selected []string
	values := models.Photo{}
	// an operator supplied title wins over a generated one
	if enrichment.Title != "" && photo.Title == "" {
		selected = append(selected, "Title")
		values.Title = enrichment.Title
	}
	if enrichment.Description != "" {
		selected = append(selected, "Description")
		values.Description = &enrichment.Description
	}
	if len(enrichment.Tags) > 0 {
		selected = append(selected, "Tags")
		values.Tags = enrichment.Tags
	}
	if len(selected) == 0 {
		return nil
	}

	// struct updates keep the json serializer of Tags in play
	result := r.DB.WithContext(ctx).Model(photo).Select(selected).Updates(&values)
	if result.Error != nil {
		return fmt.Errorf("failed to apply enrichment for photo %d: %w", id, result.Error)
	}
	return nil
}

func (r *GormPhotoRepository) MarkDraft(ctx context.Context, id uint) error {
	return r.update(ctx, id, "draft status", map[string]interface{}{
		"status":           models.StatusDraft,
		"processing_stage": gorm.Expr("NULL"),
		"processing_error": gorm.Expr("NULL"),
	})
}

// MarkFailed is safe to call repeatedly for the same photo
func (r *GormPhotoRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	return r.update(ctx, id, "failed status", map[string]interface{}{
		"status":           models.StatusFailed,
		"processing_stage": models.StageError,
		"processing_error": message,
	})
}

func (r *GormPhotoRepository) UpdateAssetPaths(ctx context.Context, id uint, paths AssetPaths) error {
	columns := map[string]interface{}{}
	if paths.DisplayPath != nil {
		columns["display_path"] = *paths.DisplayPath
	}
	if paths.WatermarkedPath != nil {
		columns["watermarked_path"] = *paths.WatermarkedPath
	}
	if len(columns) == 0 {
		return nil
	}
	return r.update(ctx, id, "asset paths", columns)
}
