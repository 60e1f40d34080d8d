package repository

import (
	"context"
	"errors"

	"github.com/camden-git/photopipeline/models"
)

// ErrNotClaimable is returned when a photo is not in a state a processing
// run may take over (draft or published)
var ErrNotClaimable = errors.New("photo is not awaiting processing")

// VersionPaths are the derived asset paths written after version generation
type VersionPaths struct {
	DisplayPath     string
	ThumbnailPath   string
	WatermarkedPath string
}

// Details are facts read from the original upload
type Details struct {
	FileSize     int64
	Width        *int
	Height       *int
	TakenAt      *int64
	CameraMake   *string
	CameraModel  *string
	LensModel    *string
	FocalLength  *float64
	Aperture     *float64
	ShutterSpeed *string
	ISO          *int
}

// Enrichment is what AI analysis may add to a photo
type Enrichment struct {
	Title       string
	Description string
	Tags        []string
}

// AssetPaths are the path columns the AVIF converter may rewrite. nil leaves
// a column unchanged.
type AssetPaths struct {
	DisplayPath     *string
	WatermarkedPath *string
}

// PhotoRepository defines the methods for photo data operations
type PhotoRepository interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id uint) (*models.Photo, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Photo, error)

	// ClaimForProcessing moves a processing or failed photo into processing
	// and clears the previous error
	ClaimForProcessing(ctx context.Context, id uint) error
	SetStage(ctx context.Context, id uint, stage string) error
	SetDetails(ctx context.Context, id uint, details Details) error
	SetVersions(ctx context.Context, id uint, paths VersionPaths) error
	SetHashes(ctx context.Context, id uint, fileHash, imageHash string) error
	SetDominantColor(ctx context.Context, id uint, hex string) error
	ApplyEnrichment(ctx context.Context, id uint, enrichment Enrichment) error
	MarkDraft(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, message string) error

	UpdateAssetPaths(ctx context.Context, id uint, paths AssetPaths) error
}
