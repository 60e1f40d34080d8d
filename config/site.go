package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatJPEG = "jpg"

	HashSHA256  = "sha256"
	HashBlake2b = "blake2b"
)

// SiteSettings are the operator-editable knobs of the image pipeline. They
// live in a YAML file so the batch tools and the upload job read the same
// quality value.
type SiteSettings struct {
	ImageQuality     int     `yaml:"image_quality"`
	OutputFormat     string  `yaml:"output_format"`
	ThumbnailMaxSize int     `yaml:"thumbnail_max_size"`
	DisplayMaxSize   int     `yaml:"display_max_size"`
	WatermarkMaxSize int     `yaml:"watermark_max_size"`
	WatermarkEnabled bool    `yaml:"watermark_enabled"`
	WatermarkText    string  `yaml:"watermark_text"`
	WatermarkOpacity float64 `yaml:"watermark_opacity"`

	AIAnalysisEnabled bool `yaml:"ai_analysis_enabled"`
	// AIFailureFatal turns an enrichment failure into a failed photo
	AIFailureFatal bool `yaml:"ai_failure_fatal"`

	FileHashAlgorithm string `yaml:"file_hash_algorithm"`
}

func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		ImageQuality:      82,
		OutputFormat:      FormatWebP,
		ThumbnailMaxSize:  400,
		DisplayMaxSize:    2048,
		WatermarkMaxSize:  2048,
		WatermarkEnabled:  true,
		WatermarkText:     "© Portfolio",
		WatermarkOpacity:  0.35,
		FileHashAlgorithm: HashSHA256,
	}
}

// LoadSiteSettings overlays the YAML file at path onto the defaults. An empty
// path returns the defaults.
func LoadSiteSettings(path string) (SiteSettings, error) {
	settings := DefaultSiteSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SiteSettings{}, fmt.Errorf("failed to read site settings '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return SiteSettings{}, fmt.Errorf("failed to parse site settings '%s': %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return SiteSettings{}, fmt.Errorf("invalid site settings '%s': %w", path, err)
	}
	return settings, nil
}

func (s *SiteSettings) Validate() error {
	if s.ImageQuality < 1 || s.ImageQuality > 100 {
		return fmt.Errorf("image_quality must be between 1 and 100, got %d", s.ImageQuality)
	}
	if s.ThumbnailMaxSize <= 0 || s.DisplayMaxSize <= 0 || s.WatermarkMaxSize <= 0 {
		return fmt.Errorf("variant sizes must be positive")
	}
	if s.WatermarkOpacity < 0 || s.WatermarkOpacity > 1 {
		return fmt.Errorf("watermark_opacity must be between 0 and 1, got %v", s.WatermarkOpacity)
	}

	s.OutputFormat = strings.TrimPrefix(strings.ToLower(s.OutputFormat), ".")
	if s.OutputFormat == "jpeg" {
		s.OutputFormat = FormatJPEG
	}
	switch s.OutputFormat {
	case FormatWebP, FormatAVIF, FormatJPEG:
	default:
		return fmt.Errorf("unsupported output_format '%s'", s.OutputFormat)
	}

	s.FileHashAlgorithm = strings.ToLower(s.FileHashAlgorithm)
	if s.FileHashAlgorithm != HashSHA256 && s.FileHashAlgorithm != HashBlake2b {
		return fmt.Errorf("unsupported file_hash_algorithm '%s'", s.FileHashAlgorithm)
	}
	return nil
}

// OutputExtension is the file extension implied by OutputFormat.
func (s SiteSettings) OutputExtension() string {
	return "." + s.OutputFormat
}
