package commands

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/media"
)

// DefaultOrphanMinAge keeps files an in-flight upload may not have linked yet
const DefaultOrphanMinAge = time.Hour

type OrphanOptions struct {
	DryRun bool
	// MinAge skips files modified more recently than this; 0 uses DefaultOrphanMinAge
	MinAge time.Duration
	// Now is the reference time for MinAge; zero means time.Now
	Now time.Time
}

var prunedTypes = []media.AssetType{
	media.AssetTypeThumbnail,
	media.AssetTypeDisplay,
	media.AssetTypeWatermarked,
}

// PruneOrphans deletes variant files that no photo row references. Only
// files named after a base name are considered, so anything an operator
// placed in the media tree by hand is left alone.
func PruneOrphans(ctx context.Context, deps Deps, opts OrphanOptions) (Summary, error) {
	log := deps.Log.WithComponent("commands.orphans")
	summary := Summary{Command: "prune-orphans", DryRun: opts.DryRun}

	minAge := opts.MinAge
	if minAge <= 0 {
		minAge = DefaultOrphanMinAge
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	referenced, err := database.ListReferencedAssetPaths(ctx, deps.DB)
	if err != nil {
		return summary, err
	}
	log.Info("starting orphan scan", "referenced", len(referenced), "min_age", minAge, "dry_run", opts.DryRun)

	for _, assetType := range prunedTypes {
		files, err := deps.Store.List(assetType)
		if err != nil {
			return summary, err
		}
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if referenced[rel] {
				continue
			}
			base := path.Base(rel)
			if _, err := media.ParseBaseName(strings.TrimSuffix(base, path.Ext(base))); err != nil {
				continue
			}
			pruneFile(deps, &summary, rel, now.Add(-minAge), opts.DryRun)
		}
	}

	log.Info("orphan scan finished", "processed", summary.Processed, "skipped", summary.Skipped, "errors", summary.Errors)
	return summary, nil
}

func pruneFile(deps Deps, summary *Summary, rel string, cutoff time.Time, dryRun bool) {
	rc, info, err := deps.Store.Get(rel)
	if err != nil {
		summary.record(0, OutcomeError, fmt.Sprintf("%s: %v", rel, err))
		return
	}
	rc.Close()

	if info.ModTime().After(cutoff) {
		summary.record(0, OutcomeSkipped, rel+": too recent")
		return
	}
	if !dryRun {
		if err := deps.Store.Delete(rel); err != nil {
			deps.Log.Error("failed to delete orphaned asset", "path", rel, "error", err)
			summary.record(0, OutcomeError, fmt.Sprintf("%s: %v", rel, err))
			return
		}
	}
	summary.record(0, OutcomeProcessed, rel+": unreferenced")
}
