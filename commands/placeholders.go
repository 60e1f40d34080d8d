package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/media"
)

type PlaceholderOptions struct {
	DryRun  bool
	PhotoID uint
	Limit   int
	// Force recomputes colors that are already set
	Force bool
}

// GeneratePlaceholders backfills dominant_color. Only that column is ever
// written. Photos without a thumbnail or display file on disk are skipped.
func GeneratePlaceholders(ctx context.Context, deps Deps, opts PlaceholderOptions) (Summary, error) {
	log := deps.Log.WithComponent("commands.placeholders")
	summary := Summary{Command: "generate-placeholders", DryRun: opts.DryRun}

	ids, err := database.ListPlaceholderCandidateIDs(ctx, deps.DB, database.CandidateFilter{
		PhotoID: opts.PhotoID,
		Limit:   opts.Limit,
		Force:   opts.Force,
	})
	if err != nil {
		return summary, err
	}
	if opts.PhotoID != 0 && len(ids) == 0 {
		log.Info("photo already has a placeholder, use --force to recompute", "photo_id", opts.PhotoID)
	}

	generator := media.NewPlaceholderGenerator(deps.Store)
	log.Info("starting placeholder generation", "candidates", len(ids), "force", opts.Force, "dry_run", opts.DryRun)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		photo, err := deps.Repo.GetByID(ctx, id)
		if err != nil {
			log.Error("failed to load photo", "photo_id", id, "error", err)
			summary.record(id, OutcomeError, err.Error())
			continue
		}

		color, err := generator.FromStore(photo.ThumbnailPath, photo.DisplayPath)
		if errors.Is(err, media.ErrNoPlaceholderSource) {
			summary.record(id, OutcomeSkipped, "no source image")
			continue
		}
		if err != nil {
			log.Error("placeholder generation failed", "photo_id", id, "error", err)
			summary.record(id, OutcomeError, err.Error())
			continue
		}

		if !opts.DryRun {
			if err := deps.Repo.SetDominantColor(ctx, id, color); err != nil {
				log.Error("failed to store dominant color", "photo_id", id, "error", err)
				summary.record(id, OutcomeError, err.Error())
				continue
			}
		}
		summary.record(id, OutcomeProcessed, fmt.Sprintf("dominant color %s", color))
	}

	log.Info("placeholder generation finished", "processed", summary.Processed, "skipped", summary.Skipped, "errors", summary.Errors)
	return summary, nil
}
