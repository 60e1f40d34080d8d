package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/models"
	"github.com/camden-git/photopipeline/repository"
	"github.com/camden-git/photopipeline/workers"
)

const (
	// DefaultMaxUploadBytes caps a single upload request
	DefaultMaxUploadBytes = 100 << 20
	uploadFormField       = "photo"
	maxStatusIDs          = 100
)

// PhotoHandler accepts uploads and reports their processing state
type PhotoHandler struct {
	Repo           repository.PhotoRepository
	Dispatcher     workers.Dispatcher
	TempDir        string
	MaxUploadBytes int64
	Log            *logger.Logger
}

// PhotoStatus is the API view of a photo while and after it is processed
type PhotoStatus struct {
	ID              uint     `json:"id"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Stage           string   `json:"stage,omitempty"`
	Error           string   `json:"error,omitempty"`
	DisplayPath     string   `json:"display_path,omitempty"`
	ThumbnailPath   string   `json:"thumbnail_path,omitempty"`
	WatermarkedPath string   `json:"watermarked_path,omitempty"`
	DominantColor   string   `json:"dominant_color,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

func newPhotoStatus(p *models.Photo) PhotoStatus {
	status := PhotoStatus{
		ID:     p.ID,
		Title:  p.Title,
		Status: p.Status,
		Stage:  p.StageName(),
		Width:  p.Width,
		Height: p.Height,
		Tags:   p.Tags,
	}
	status.Error = deref(p.ProcessingError)
	status.DisplayPath = deref(p.DisplayPath)
	status.ThumbnailPath = deref(p.ThumbnailPath)
	status.WatermarkedPath = deref(p.WatermarkedPath)
	status.DominantColor = deref(p.DominantColor)
	return status
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Upload stores the multipart "photo" file in the temp upload directory,
// creates the photo row in processing state and queues the job. The
// response is sent before any processing happens.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := h.Log.WithComponent("handlers.photos")

	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxBytes))
			return
		}
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "multipart field 'photo' is required")
		return
	}
	defer file.Close()

	originalName := filepath.Base(header.Filename)
	if !media.IsRasterImage(originalName) {
		WriteAPIError(w, http.StatusUnsupportedMediaType, CodeUnsupported, fmt.Sprintf("'%s' is not a supported image type", originalName))
		return
	}

	tempPath, size, err := h.saveTemp(file, strings.ToLower(filepath.Ext(originalName)))
	if err != nil {
		log.Error("failed to store upload", "file", originalName, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not store upload")
		return
	}

	photo := &models.Photo{
		Title:            strings.TrimSpace(r.FormValue("title")),
		OriginalFilename: originalName,
		Status:           models.StatusProcessing,
		FileSize:         size,
	}
	if err := h.Repo.Create(r.Context(), photo); err != nil {
		os.Remove(tempPath)
		log.Error("failed to create photo", "file", originalName, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not create photo")
		return
	}

	job := workers.UploadJob{PhotoID: photo.ID, TempPath: tempPath, OriginalFilename: originalName}
	if err := h.Dispatcher.Dispatch(r.Context(), job); err != nil {
		h.abandon(photo.ID, tempPath, err)
		switch {
		case errors.Is(err, workers.ErrAlreadyQueued):
			WriteAPIError(w, http.StatusConflict, CodeConflict, err.Error())
		case errors.Is(err, workers.ErrQueueFull):
			WriteAPIError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
		default:
			log.Error("failed to dispatch upload job", "photo_id", photo.ID, "error", err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not queue photo for processing")
		}
		return
	}

	log.Info("accepted upload", "photo_id", photo.ID, "file", originalName, "size", size)
	writeJSON(w, http.StatusAccepted, newPhotoStatus(photo))
}

func (h *PhotoHandler) saveTemp(src io.Reader, ext string) (string, int64, error) {
	if err := os.MkdirAll(h.TempDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create temp upload dir: %w", err)
	}
	tempPath := filepath.Join(h.TempDir, "upload-"+uuid.NewString()+ext)
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return "", 0, err
	}
	return tempPath, size, nil
}

// abandon fails a photo whose job never got queued
func (h *PhotoHandler) abandon(photoID uint, tempPath string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Repo.MarkFailed(ctx, photoID, "could not queue upload: "+cause.Error()); err != nil {
		h.Log.Warn("failed to mark unqueued photo as failed", "photo_id", photoID, "error", err)
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.Log.Warn("failed to remove temp upload", "path", tempPath, "error", err)
	}
}

func (h *PhotoHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid photo id")
		return
	}
	photo, err := h.Repo.GetByID(r.Context(), uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("photo %d not found", id))
		return
	}
	if err != nil {
		h.Log.Error("failed to load photo", "photo_id", id, "error", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not load photo")
		return
	}
	writeJSON(w, http.StatusOK, newPhotoStatus(photo))
}

// List reports the state of several photos at once: GET /api/photos?ids=1,2,3
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	var ids []uint
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid photo id '%s'", part))
			return
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 || len(ids) > maxStatusIDs {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("between 1 and %d ids are required", maxStatusIDs))
		return
	}

	photos, err := h.Repo.GetByIDs(r.Context(), ids)
	if err != nil {
		h.Log.Error("failed to load photos", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "could not load photos")
		return
	}
	out := make([]PhotoStatus, 0, len(photos))
	for i := range photos {
		out = append(out, newPhotoStatus(&photos[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
