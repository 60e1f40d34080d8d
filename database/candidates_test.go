package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/internal/testutil"
	"github.com/camden-git/photopipeline/models"
)

func TestListAvifCandidateIDs(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	rows := []models.Photo{
		{OriginalFilename: "a.jpg", Status: models.StatusDraft, DisplayPath: testutil.StringPtr("display/a.webp")},
		{OriginalFilename: "b.jpg", Status: models.StatusDraft, DisplayPath: testutil.StringPtr("display/b.avif"), WatermarkedPath: testutil.StringPtr("watermarked/b.webp")},
		{OriginalFilename: "c.jpg", Status: models.StatusDraft, DisplayPath: testutil.StringPtr("display/c.avif"), WatermarkedPath: testutil.StringPtr("watermarked/c.avif")},
		{OriginalFilename: "d.jpg", Status: models.StatusProcessing},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	ids, err := database.ListAvifCandidateIDs(ctx, db, ".webp", database.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID, rows[1].ID}, ids)

	// converted photos do not use up the limit
	ids, err = database.ListAvifCandidateIDs(ctx, db, ".webp", database.CandidateFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID}, ids)

	upper := models.Photo{OriginalFilename: "e.jpg", Status: models.StatusDraft, DisplayPath: testutil.StringPtr("display/E.WEBP")}
	require.NoError(t, db.Create(&upper).Error)
	ids, err = database.ListAvifCandidateIDs(ctx, db, ".webp", database.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[0].ID, rows[1].ID, upper.ID}, ids)

	// a single photo is returned even when nothing is left to convert
	ids, err = database.ListAvifCandidateIDs(ctx, db, ".webp", database.CandidateFilter{PhotoID: rows[2].ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[2].ID}, ids)

	// a photo without versions has nothing to convert
	ids, err = database.ListAvifCandidateIDs(ctx, db, ".webp", database.CandidateFilter{PhotoID: rows[3].ID})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListPlaceholderCandidateIDs(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	withColor := models.Photo{OriginalFilename: "a.jpg", Status: models.StatusDraft, DominantColor: testutil.StringPtr("#112233")}
	without := models.Photo{OriginalFilename: "b.jpg", Status: models.StatusDraft}
	deleted := models.Photo{OriginalFilename: "c.jpg", Status: models.StatusDraft}
	require.NoError(t, db.Create(&withColor).Error)
	require.NoError(t, db.Create(&without).Error)
	require.NoError(t, db.Create(&deleted).Error)
	require.NoError(t, db.Delete(&deleted).Error)

	ids, err := database.ListPlaceholderCandidateIDs(ctx, db, database.CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, []uint{without.ID}, ids)

	ids, err = database.ListPlaceholderCandidateIDs(ctx, db, database.CandidateFilter{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []uint{withColor.ID, without.ID}, ids)

	ids, err = database.ListPlaceholderCandidateIDs(ctx, db, database.CandidateFilter{PhotoID: withColor.ID})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListReferencedAssetPaths(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	live := models.Photo{
		OriginalFilename: "a.jpg",
		Status:           models.StatusDraft,
		ThumbnailPath:    testutil.StringPtr("thumbnails/a.webp"),
		DisplayPath:      testutil.StringPtr("display/a.webp"),
	}
	gone := models.Photo{OriginalFilename: "b.jpg", Status: models.StatusDraft, WatermarkedPath: testutil.StringPtr("watermarked/b.avif")}
	empty := models.Photo{OriginalFilename: "c.jpg", Status: models.StatusProcessing}
	for _, p := range []*models.Photo{&live, &gone, &empty} {
		require.NoError(t, db.Create(p).Error)
	}
	require.NoError(t, db.Delete(&gone).Error)

	paths, err := database.ListReferencedAssetPaths(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"thumbnails/a.webp":  true,
		"display/a.webp":     true,
		"watermarked/b.avif": true,
	}, paths)
}
