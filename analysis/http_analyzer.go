package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/photopipeline/models"
)

const (
	defaultTimeout = 30 * time.Second
	maxTags        = 20
	// cap on the error body quoted back in messages
	maxErrorBody = 512
)

// HTTPAnalyzer posts the image bytes to baseURL/analyze and reads back a
// JSON Result
type HTTPAnalyzer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPAnalyzer(baseURL, apiKey string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, photo *models.Photo, imagePath string) (Result, error) {
	result, err := a.analyze(ctx, photo, imagePath)
	if err != nil {
		return Result{}, &EnrichmentError{PhotoID: photo.ID, Err: err}
	}
	return result, nil
}

func (a *HTTPAnalyzer) analyze(ctx context.Context, photo *models.Photo, imagePath string) (Result, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	query := url.Values{}
	query.Set("photo_id", strconv.FormatUint(uint64(photo.ID), 10))
	query.Set("filename", photo.OriginalFilename)
	endpoint := a.baseURL + "/analyze?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(imagePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return Result{}, fmt.Errorf("analysis service returned status %d, body: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return normalize(result), nil
}

// normalize trims whitespace and drops empty or repeated tags
func normalize(r Result) Result {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)

	seen := make(map[string]bool, len(r.Tags))
	tags := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	r.Tags = tags
	return r
}
