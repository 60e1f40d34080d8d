package commands_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photopipeline/commands"
	"github.com/camden-git/photopipeline/media"
)

// age backdates a stored file so it is past the orphan cutoff
func (f *fixture) age(t *testing.T, rel string, d time.Duration) {
	t.Helper()
	full, err := f.deps.Store.GetFullPath(rel)
	require.NoError(t, err)
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(full, old, old))
}

func (f *fixture) exists(t *testing.T, rel string) bool {
	t.Helper()
	ok, err := f.deps.Store.Exists(rel)
	require.NoError(t, err)
	return ok
}

func TestPruneOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	linked := uuid.NewString()
	thumb := f.save(t, media.AssetTypeThumbnail, linked+".webp")
	display := f.save(t, media.AssetTypeDisplay, linked+".webp")
	f.photo(t, "linked.jpg", map[string]interface{}{"thumbnail_path": thumb, "display_path": display})

	deleted := f.save(t, media.AssetTypeWatermarked, uuid.NewString()+".avif")
	gone := f.photo(t, "gone.jpg", map[string]interface{}{"watermarked_path": deleted})
	require.NoError(t, f.db.Delete(gone).Error)

	orphanThumb := f.save(t, media.AssetTypeThumbnail, uuid.NewString()+".webp")
	orphanDisplay := f.save(t, media.AssetTypeDisplay, uuid.NewString()+".avif")
	fresh := f.save(t, media.AssetTypeDisplay, uuid.NewString()+".webp")
	manual := f.save(t, media.AssetTypeDisplay, "banner.webp")

	for _, rel := range []string{thumb, display, deleted, orphanThumb, orphanDisplay, manual} {
		f.age(t, rel, 2*time.Hour)
	}

	dry, err := commands.PruneOrphans(ctx, f.deps, commands.OrphanOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Processed)
	assert.Equal(t, 1, dry.Skipped)
	assert.True(t, f.exists(t, orphanThumb))
	assert.True(t, f.exists(t, orphanDisplay))

	summary, err := commands.PruneOrphans(ctx, f.deps, commands.OrphanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.ExitCode())

	assert.False(t, f.exists(t, orphanThumb))
	assert.False(t, f.exists(t, orphanDisplay))
	for _, rel := range []string{thumb, display, deleted, fresh, manual} {
		assert.True(t, f.exists(t, rel), rel)
	}

	// the fresh file becomes eligible once it is older than the cutoff
	later, err := commands.PruneOrphans(ctx, f.deps, commands.OrphanOptions{Now: time.Now().Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, later.Processed)
	assert.False(t, f.exists(t, fresh))
}

func TestPruneOrphansHonoursMinAge(t *testing.T) {
	f := newFixture(t)
	rel := f.save(t, media.AssetTypeThumbnail, uuid.NewString()+".webp")
	f.age(t, rel, 10*time.Minute)

	summary, err := commands.PruneOrphans(context.Background(), f.deps, commands.OrphanOptions{MinAge: 5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.False(t, f.exists(t, rel))
}
