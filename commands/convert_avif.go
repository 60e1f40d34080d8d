package commands

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/models"
	"github.com/camden-git/photopipeline/repository"
)

const (
	legacyExt = media.ExtWebP

	avifQualityOffset = 15
	avifQualityFloor  = 45
	avifQualityCeil   = 85
)

type AvifOptions struct {
	DryRun   bool
	KeepWebp bool
	PhotoID  uint
	Limit    int
}

// AvifQualityFor maps the legacy webp quality onto the avif scale. AVIF holds
// up at lower settings, so the value is shifted down and clamped.
func AvifQualityFor(legacy int) int {
	q := legacy - avifQualityOffset
	if q < avifQualityFloor {
		return avifQualityFloor
	}
	if q > avifQualityCeil {
		return avifQualityCeil
	}
	return q
}

// assetField is one convertible path column of a photo
type assetField struct {
	name      string
	assetType media.AssetType
	path      *string
}

// ConvertAvif re-encodes legacy webp display and watermarked versions as
// avif. A target that already exists is not rewritten, so a second run is a
// no-op. With DryRun set nothing on disk or in the database changes but the
// counts match a real run.
func ConvertAvif(ctx context.Context, deps Deps, opts AvifOptions) (Summary, error) {
	log := deps.Log.WithComponent("commands.convert-avif")
	summary := Summary{Command: "convert-avif", DryRun: opts.DryRun}

	ids, err := database.ListAvifCandidateIDs(ctx, deps.DB, legacyExt, database.CandidateFilter{
		PhotoID: opts.PhotoID,
		Limit:   opts.Limit,
	})
	if err != nil {
		return summary, err
	}
	if opts.PhotoID != 0 && len(ids) == 0 {
		return summary, fmt.Errorf("photo %d has no display or watermarked version", opts.PhotoID)
	}

	quality := AvifQualityFor(deps.Settings.ImageQuality)
	log.Info("starting avif conversion", "candidates", len(ids), "quality", quality, "dry_run", opts.DryRun)

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

		outcome, detail := convertPhoto(ctx, deps, photo, quality, opts)
		if outcome == OutcomeError {
			log.Error("avif conversion failed", "photo_id", id, "error", detail)
		} else {
			log.Debug("avif conversion", "photo_id", id, "outcome", outcome, "detail", detail)
		}
		summary.record(id, outcome, detail)
	}

	log.Info("avif conversion finished", "processed", summary.Processed, "skipped", summary.Skipped, "errors", summary.Errors)
	return summary, nil
}

func convertPhoto(ctx context.Context, deps Deps, photo *models.Photo, quality int, opts AvifOptions) (Outcome, string) {
	fields := []assetField{
		{name: "display", assetType: media.AssetTypeDisplay, path: photo.DisplayPath},
		{name: "watermarked", assetType: media.AssetTypeWatermarked, path: photo.WatermarkedPath},
	}

	var update repository.AssetPaths
	var converted, relinked []string
	var obsolete []string

	for _, field := range fields {
		if field.path == nil || !strings.EqualFold(path.Ext(*field.path), legacyExt) {
			continue
		}
		source := *field.path
		target := strings.TrimSuffix(source, path.Ext(source)) + media.ExtAVIF

		targetExists, err := deps.Store.Exists(target)
		if err != nil {
			return OutcomeError, fmt.Sprintf("%s: %v", field.name, err)
		}
		if targetExists {
			// converted before but the row still points at the webp
			setField(&update, field.name, target)
			relinked = append(relinked, field.name)
			obsolete = append(obsolete, source)
			continue
		}

		sourceExists, err := deps.Store.Exists(source)
		if err != nil {
			return OutcomeError, fmt.Sprintf("%s: %v", field.name, err)
		}
		if !sourceExists {
			continue
		}

		saved, err := encodeAvif(deps.Store, field.assetType, source, target, quality, opts.DryRun)
		if err != nil {
			return OutcomeError, fmt.Sprintf("%s: %v", field.name, err)
		}
		setField(&update, field.name, saved)
		converted = append(converted, field.name)
		obsolete = append(obsolete, source)
	}

	if len(converted) == 0 && len(relinked) == 0 {
		return OutcomeSkipped, "nothing to convert"
	}

	if !opts.DryRun {
		if err := deps.Repo.UpdateAssetPaths(ctx, photo.ID, update); err != nil {
			return OutcomeError, err.Error()
		}
		if !opts.KeepWebp {
			for _, old := range obsolete {
				if err := deps.Store.Delete(old); err != nil {
					deps.Log.Warn("could not delete legacy file", "photo_id", photo.ID, "path", old, "error", err)
				}
			}
		}
	}

	if len(converted) == 0 {
		return OutcomeSkipped, "target exists, relinked " + strings.Join(relinked, ",")
	}
	return OutcomeProcessed, "converted " + strings.Join(converted, ",")
}

// encodeAvif decodes the legacy file and writes the avif next to it. In a
// dry run the source is still decoded so broken files are reported, but
// nothing is written and the would-be target path is returned.
func encodeAvif(store media.Store, assetType media.AssetType, source, target string, quality int, dryRun bool) (string, error) {
	fullPath, err := store.GetFullPath(source)
	if err != nil {
		return "", err
	}
	img, err := media.DecodeFile(fullPath)
	if err != nil {
		return "", err
	}
	if dryRun {
		return target, nil
	}

	return media.SaveEncoded(store, assetType, path.Base(target), img, media.ExtAVIF, quality)
}

func setField(paths *repository.AssetPaths, name, value string) {
	v := value
	switch name {
	case "display":
		paths.DisplayPath = &v
	case "watermarked":
		paths.WatermarkedPath = &v
	}
}
