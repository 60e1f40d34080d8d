package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusProcessing = "processing"
	StatusDraft      = "draft"
	StatusPublished  = "published"
	StatusFailed     = "failed"
)

const (
	StageReadingImage       = "reading_image"
	StageGeneratingVersions = "generating_versions"
	StageGeneratingHashes   = "generating_hashes"
	StageAIAnalysis         = "ai_analysis"
	StageError              = "error"
)

// Photo is one uploaded image and its processing/publication state.
// It corresponds to the 'photos' table.
type Photo struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	Title            string `gorm:"" json:"title"`
	OriginalFilename string `gorm:"not null" json:"original_filename"`

	Status          string  `gorm:"not null;default:processing;index" json:"status"`
	ProcessingStage *string `gorm:"" json:"processing_stage"`
	ProcessingError *string `gorm:"" json:"processing_error,omitempty"`

	DisplayPath     *string `gorm:"" json:"display_path,omitempty"`
	ThumbnailPath   *string `gorm:"" json:"thumbnail_path,omitempty"`
	WatermarkedPath *string `gorm:"" json:"watermarked_path,omitempty"`

	FileHash      *string `gorm:"index;size:64" json:"file_hash,omitempty"`
	ImageHash     *string `gorm:"index;size:16" json:"image_hash,omitempty"`
	DominantColor *string `gorm:"size:7" json:"dominant_color,omitempty"`
	FileSize      int64   `gorm:"not null;default:0" json:"file_size"`

	Width        *int       `gorm:"" json:"width,omitempty"`
	Height       *int       `gorm:"" json:"height,omitempty"`
	TakenAt      *time.Time `gorm:"index" json:"taken_at,omitempty"`
	CameraMake   *string    `gorm:"" json:"camera_make,omitempty"`
	CameraModel  *string    `gorm:"" json:"camera_model,omitempty"`
	LensModel    *string    `gorm:"" json:"lens_model,omitempty"`
	FocalLength  *float64   `gorm:"" json:"focal_length,omitempty"` // mm
	Aperture     *float64   `gorm:"" json:"aperture,omitempty"`     // f-number
	ShutterSpeed *string    `gorm:"" json:"shutter_speed,omitempty"`
	ISO          *int       `gorm:"" json:"iso,omitempty"`

	// written by AI analysis
	Description *string  `gorm:"" json:"description,omitempty"`
	Tags        []string `gorm:"serializer:json" json:"tags,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Photo) TableName() string {
	return "photos"
}

// IsTerminal reports whether the last processing run has finished.
func (p *Photo) IsTerminal() bool {
	return p.Status != StatusProcessing
}

// StageName returns the current stage or "" when none is set.
func (p *Photo) StageName() string {
	if p.ProcessingStage == nil {
		return ""
	}
	return *p.ProcessingStage
}
