// Package analysis talks to the external image analysis service that
// suggests a title, description and tags for a freshly processed photo.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/camden-git/photopipeline/models"
)

// ErrDisabled is returned by the Disabled analyzer
var ErrDisabled = errors.New("ai analysis is disabled")

// Result is what the service suggests for one photo
type Result struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (r Result) IsEmpty() bool {
	return r.Title == "" && r.Description == "" && len(r.Tags) == 0
}

// Analyzer enriches a photo from one of its rendered versions
type Analyzer interface {
	Analyze(ctx context.Context, photo *models.Photo, imagePath string) (Result, error)
}

// EnrichmentError wraps any failure of the analysis call
type EnrichmentError struct {
	PhotoID uint
	Err     error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("ai analysis failed for photo %d: %v", e.PhotoID, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// Disabled is used when no analysis endpoint is configured
type Disabled struct{}

func (Disabled) Analyze(context.Context, *models.Photo, string) (Result, error) {
	return Result{}, ErrDisabled
}
