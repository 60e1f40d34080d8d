package workers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/photopipeline/analysis"
	"github.com/camden-git/photopipeline/config"
	"github.com/camden-git/photopipeline/events"
	"github.com/camden-git/photopipeline/hashing"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/models"
	"github.com/camden-git/photopipeline/repository"
)

// PhotoUploadProcessor drives one photo from its raw upload to a draft with
// derived versions and fingerprints
type PhotoUploadProcessor struct {
	repo        repository.PhotoRepository
	store       media.Store
	versions    *media.VersionGenerator
	placeholder *media.PlaceholderGenerator
	hasher      *hashing.Extractor
	analyzer    analysis.Analyzer
	sink        events.Sink
	settings    config.SiteSettings
	log         *logger.Logger
	now         func() time.Time
}

type ProcessorDeps struct {
	Repo     repository.PhotoRepository
	Store    media.Store
	Hasher   *hashing.Extractor
	Analyzer analysis.Analyzer
	Sink     events.Sink
	Settings config.SiteSettings
	Log      *logger.Logger
}

func NewPhotoUploadProcessor(deps ProcessorDeps) *PhotoUploadProcessor {
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.Disabled{}
	}
	sink := deps.Sink
	if sink == nil {
		sink = events.MultiSink{}
	}
	return &PhotoUploadProcessor{
		repo:        deps.Repo,
		store:       deps.Store,
		versions:    media.NewVersionGenerator(deps.Store, deps.Settings, deps.Log),
		placeholder: media.NewPlaceholderGenerator(deps.Store),
		hasher:      deps.Hasher,
		analyzer:    analyzer,
		sink:        sink,
		settings:    deps.Settings,
		log:         deps.Log.WithComponent("workers.upload"),
		now:         time.Now,
	}
}

var _ JobHandler = (*PhotoUploadProcessor)(nil)

// Handle runs one attempt. Any error leaves the photo failed with stage
// "error" and the temp file removed. A missing temp file is reported as a
// permanent error without touching the photo.
func (p *PhotoUploadProcessor) Handle(ctx context.Context, job UploadJob) error {
	start := p.now()
	log := p.log.WithPhotoID(job.PhotoID)

	if err := job.Validate(); err != nil {
		return permanent(err)
	}

	info, err := os.Stat(job.TempPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return permanent(fmt.Errorf("%w: %s", ErrSourceMissing, job.TempPath))
		}
		return p.fail(ctx, job, start, 0, "", fmt.Errorf("failed to stat temp upload: %w", err))
	}

	if err := p.repo.ClaimForProcessing(ctx, job.PhotoID); err != nil {
		if errors.Is(err, repository.ErrNotClaimable) || errors.Is(err, gorm.ErrRecordNotFound) {
			// the photo finished or vanished in the meantime; the upload is orphaned
			p.removeTemp(job, log)
			return permanent(err)
		}
		return p.fail(ctx, job, start, info.Size(), "", err)
	}

	photo, err := p.repo.GetByID(ctx, job.PhotoID)
	if err != nil {
		return p.fail(ctx, job, start, info.Size(), "", err)
	}

	stage, err := p.run(ctx, job, photo, info.Size(), log)
	if err != nil {
		return p.fail(ctx, job, start, info.Size(), stage, err)
	}

	if err := p.repo.MarkDraft(ctx, job.PhotoID); err != nil {
		return p.fail(ctx, job, start, info.Size(), "", err)
	}
	p.removeTemp(job, log)

	duration := p.now().Sub(start)
	p.sink.Publish(ctx, events.New(events.PhotoUploaded, job.PhotoID, map[string]any{
		"duration_ms":       duration.Milliseconds(),
		"file_size":         info.Size(),
		"original_filename": job.OriginalFilename,
	}))
	log.Info("photo processed", "duration", duration, "file_size", info.Size())
	return nil
}

// run executes the stages in order and returns the stage that failed
func (p *PhotoUploadProcessor) run(ctx context.Context, job UploadJob, photo *models.Photo, fileSize int64, log *logger.Logger) (string, error) {
	// reading_image
	if err := p.enterStage(ctx, job, models.StageReadingImage); err != nil {
		return models.StageReadingImage, err
	}
	img, err := media.DecodeFile(job.TempPath)
	if err != nil {
		return models.StageReadingImage, err
	}
	details := repository.Details{FileSize: fileSize}
	if meta, err := media.ReadMetadata(job.TempPath, log); err != nil {
		log.Warn("could not read metadata", "error", err)
	} else {
		details.Width, details.Height = meta.Width, meta.Height
		details.TakenAt = meta.TakenAt
		details.CameraMake, details.CameraModel, details.LensModel = meta.CameraMake, meta.CameraModel, meta.LensModel
		details.FocalLength, details.Aperture = meta.FocalLength, meta.Aperture
		details.ShutterSpeed, details.ISO = meta.ShutterSpeed, meta.ISO
	}
	if details.Width == nil {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		details.Width, details.Height = &w, &h
	}
	if err := p.repo.SetDetails(ctx, job.PhotoID, details); err != nil {
		return models.StageReadingImage, err
	}

	// generating_versions
	if err := p.enterStage(ctx, job, models.StageGeneratingVersions); err != nil {
		return models.StageGeneratingVersions, err
	}
	baseName, err := media.NewBaseName()
	if err != nil {
		return models.StageGeneratingVersions, err
	}
	set, err := p.versions.Generate(ctx, img, baseName)
	if err != nil {
		return models.StageGeneratingVersions, err
	}
	err = p.repo.SetVersions(ctx, job.PhotoID, repository.VersionPaths{
		DisplayPath:     set.DisplayPath,
		ThumbnailPath:   set.ThumbnailPath,
		WatermarkedPath: set.WatermarkedPath,
	})
	if err != nil {
		p.removeVersions(log, set.ThumbnailPath, set.DisplayPath, set.WatermarkedPath)
		return models.StageGeneratingVersions, err
	}
	// variants of an earlier failed attempt are no longer referenced
	p.removeVersions(log, deref(photo.ThumbnailPath), deref(photo.DisplayPath), deref(photo.WatermarkedPath))

	if set.Thumbnail != nil {
		hex := p.placeholder.DominantColor(set.Thumbnail)
		if err := p.repo.SetDominantColor(ctx, job.PhotoID, hex); err != nil {
			log.Warn("could not store dominant color", "error", err)
		}
	}

	// generating_hashes
	if err := p.enterStage(ctx, job, models.StageGeneratingHashes); err != nil {
		return models.StageGeneratingHashes, err
	}
	fingerprint, err := p.hasher.Extract(job.TempPath)
	if err != nil {
		return models.StageGeneratingHashes, err
	}
	if err := p.repo.SetHashes(ctx, job.PhotoID, fingerprint.FileHash, fingerprint.ImageHash); err != nil {
		return models.StageGeneratingHashes, err
	}

	// ai_analysis
	if !p.settings.AIAnalysisEnabled {
		return "", nil
	}
	if err := p.enterStage(ctx, job, models.StageAIAnalysis); err != nil {
		return models.StageAIAnalysis, err
	}
	if err := p.enrich(ctx, job, set.DisplayPath); err != nil {
		if p.settings.AIFailureFatal {
			return models.StageAIAnalysis, err
		}
		log.Warn("ai analysis failed, keeping photo without enrichment", "error", err)
	}
	return "", nil
}

func (p *PhotoUploadProcessor) enrich(ctx context.Context, job UploadJob, displayPath string) error {
	photo, err := p.repo.GetByID(ctx, job.PhotoID)
	if err != nil {
		return &analysis.EnrichmentError{PhotoID: job.PhotoID, Err: err}
	}
	fullPath, err := p.store.GetFullPath(displayPath)
	if err != nil {
		return &analysis.EnrichmentError{PhotoID: job.PhotoID, Err: err}
	}
	result, err := p.analyzer.Analyze(ctx, photo, fullPath)
	if err != nil {
		return err
	}
	if result.IsEmpty() {
		return nil
	}
	err = p.repo.ApplyEnrichment(ctx, job.PhotoID, repository.Enrichment{
		Title:       result.Title,
		Description: result.Description,
		Tags:        result.Tags,
	})
	if err != nil {
		return &analysis.EnrichmentError{PhotoID: job.PhotoID, Err: err}
	}
	return nil
}

// enterStage persists the stage before any of its work starts
func (p *PhotoUploadProcessor) enterStage(ctx context.Context, job UploadJob, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.repo.SetStage(ctx, job.PhotoID, stage); err != nil {
		return err
	}
	p.sink.Publish(ctx, events.New(events.PhotoStage, job.PhotoID, map[string]any{
		"status": models.StatusProcessing,
		"stage":  stage,
	}))
	return nil
}

// fail records the failure, cleans up and hands the error back for the
// runner to retry
func (p *PhotoUploadProcessor) fail(ctx context.Context, job UploadJob, start time.Time, fileSize int64, stage string, cause error) error {
	log := p.log.WithPhotoID(job.PhotoID)
	// the attempt context may be the reason we are here
	writeCtx := context.WithoutCancel(ctx)

	if err := p.repo.MarkFailed(writeCtx, job.PhotoID, cause.Error()); err != nil {
		log.Error("could not mark photo failed", "error", err)
	}
	p.removeTemp(job, log)

	p.sink.Publish(writeCtx, events.New(events.PhotoUploadFailed, job.PhotoID, map[string]any{
		"status":            models.StatusFailed,
		"stage":             stage,
		"error":             cause.Error(),
		"original_filename": job.OriginalFilename,
		"file_size":         fileSize,
		"duration_ms":       p.now().Sub(start).Milliseconds(),
	}))
	log.Error("photo processing failed", "stage", stage, "error", cause)
	return cause
}

// Failed is the final failure handler, called once retries are exhausted.
// It is safe to run after Handle already failed the photo: an existing
// failure message is kept and no second event is emitted.
func (p *PhotoUploadProcessor) Failed(ctx context.Context, job UploadJob, cause error) {
	log := p.log.WithPhotoID(job.PhotoID)
	ctx = context.WithoutCancel(ctx)
	defer p.removeTemp(job, log)

	photo, err := p.repo.GetByID(ctx, job.PhotoID)
	if err != nil {
		log.Warn("final failure handler could not load photo", "error", err)
		return
	}
	if photo.Status == models.StatusDraft || photo.Status == models.StatusPublished {
		return
	}
	if photo.Status == models.StatusFailed && photo.ProcessingError != nil {
		return
	}

	message := "upload processing failed"
	if cause != nil {
		message = cause.Error()
	}
	if err := p.repo.MarkFailed(ctx, job.PhotoID, message); err != nil {
		log.Error("could not mark photo failed", "error", err)
		return
	}
	p.sink.Publish(ctx, events.New(events.PhotoUploadFailed, job.PhotoID, map[string]any{
		"status":            models.StatusFailed,
		"stage":             models.StageError,
		"error":             message,
		"original_filename": job.OriginalFilename,
		"file_size":         photo.FileSize,
	}))
	log.Error("photo upload failed after retries", "error", message)
}

func (p *PhotoUploadProcessor) removeTemp(job UploadJob, log *logger.Logger) {
	if job.TempPath == "" {
		return
	}
	if err := os.Remove(job.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("could not remove temp upload", "path", job.TempPath, "error", err)
	}
}

func (p *PhotoUploadProcessor) removeVersions(log *logger.Logger, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := p.store.Delete(path); err != nil {
			log.Warn("could not remove stale version", "path", path, "error", err)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
