package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/photopipeline/internal/testutil"
	"github.com/camden-git/photopipeline/models"
	"github.com/camden-git/photopipeline/repository"
)

func TestClaimForProcessing(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	require.NoError(t, repo.MarkFailed(ctx, photo.ID, "boom"))

	// a failed photo may be retried and loses its previous error
	require.NoError(t, repo.ClaimForProcessing(ctx, photo.ID))
	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Nil(t, got.ProcessingStage)
	assert.Nil(t, got.ProcessingError)

	require.NoError(t, repo.MarkDraft(ctx, photo.ID))
	assert.ErrorIs(t, repo.ClaimForProcessing(ctx, photo.ID), repository.ErrNotClaimable)

	err = repo.ClaimForProcessing(ctx, 9999)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestMarkFailedIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	require.NoError(t, repo.SetStage(ctx, photo.ID, models.StageGeneratingHashes))
	require.NoError(t, repo.MarkFailed(ctx, photo.ID, "disk full"))
	require.NoError(t, repo.MarkFailed(ctx, photo.ID, "disk full"))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, models.StageError, got.StageName())
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "disk full", *got.ProcessingError)
}

func TestMarkDraftClearsStage(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	require.NoError(t, repo.SetStage(ctx, photo.ID, models.StageAIAnalysis))
	require.NoError(t, repo.MarkDraft(ctx, photo.ID))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Nil(t, got.ProcessingStage)
	assert.True(t, got.IsTerminal())
}

func TestSetHashes(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	assert.Error(t, repo.SetHashes(ctx, photo.ID, "abc", ""))

	fileHash := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	require.NoError(t, repo.SetHashes(ctx, photo.ID, fileHash, "c3d2e1f0a0b0c0d0"))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FileHash)
	require.NotNil(t, got.ImageHash)
	assert.Equal(t, fileHash, *got.FileHash)
	assert.Equal(t, "c3d2e1f0a0b0c0d0", *got.ImageHash)

	err = repo.SetHashes(ctx, 424242, fileHash, "c3d2e1f0a0b0c0d0")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestApplyEnrichmentKeepsExistingTitle(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	titled := &models.Photo{OriginalFilename: "a.jpg", Title: "Harbour at dusk", Status: models.StatusProcessing}
	require.NoError(t, repo.Create(ctx, titled))
	untitled := testutil.CreatePhoto(t, db, "b.jpg")

	enrichment := repository.Enrichment{
		Title:       "Boats",
		Description: "Fishing boats moored at a harbour",
		Tags:        []string{"boats", "harbour"},
	}
	require.NoError(t, repo.ApplyEnrichment(ctx, titled.ID, enrichment))
	require.NoError(t, repo.ApplyEnrichment(ctx, untitled.ID, enrichment))

	got, err := repo.GetByID(ctx, titled.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harbour at dusk", got.Title)
	assert.Equal(t, []string{"boats", "harbour"}, got.Tags)
	require.NotNil(t, got.Description)

	got, err = repo.GetByID(ctx, untitled.ID)
	require.NoError(t, err)
	assert.Equal(t, "Boats", got.Title)
}

func TestSetVersionsAndAssetPaths(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	require.NoError(t, repo.SetVersions(ctx, photo.ID, repository.VersionPaths{
		DisplayPath:     "display/x.webp",
		ThumbnailPath:   "thumbnail/x.webp",
		WatermarkedPath: "watermarked/x.webp",
	}))

	avif := "display/x.avif"
	require.NoError(t, repo.UpdateAssetPaths(ctx, photo.ID, repository.AssetPaths{DisplayPath: &avif}))

	photos, err := repo.GetByIDs(ctx, []uint{photo.ID, 777})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "display/x.avif", *photos[0].DisplayPath)
	assert.Equal(t, "watermarked/x.webp", *photos[0].WatermarkedPath)
	assert.Equal(t, "thumbnail/x.webp", *photos[0].ThumbnailPath)
}

func TestSetDetails(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGormPhotoRepository(db)
	ctx := context.Background()

	photo := testutil.CreatePhoto(t, db, "a.jpg")
	w, h := 640, 480
	iso := 200
	takenAt := int64(1700000000)
	require.NoError(t, repo.SetDetails(ctx, photo.ID, repository.Details{
		FileSize: 1234,
		Width:    &w,
		Height:   &h,
		ISO:      &iso,
		TakenAt:  &takenAt,
	}))

	got, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.FileSize)
	assert.Equal(t, 640, *got.Width)
	assert.Equal(t, 200, *got.ISO)
	require.NotNil(t, got.TakenAt)
	assert.Equal(t, takenAt, got.TakenAt.Unix())
	assert.Nil(t, got.CameraMake)
}
