package media

type AssetType string

const (
	AssetTypeThumbnail   AssetType = "thumbnail"
	AssetTypeDisplay     AssetType = "display"
	AssetTypeWatermarked AssetType = "watermarked"
	AssetTypeUnknown     AssetType = "unknown"
)

// DefaultSubDirs maps each derived variant to its directory under the media
// root
func DefaultSubDirs() map[AssetType]string {
	return map[AssetType]string{
		AssetTypeThumbnail:   "thumbnails",
		AssetTypeDisplay:     "display",
		AssetTypeWatermarked: "watermarked",
	}
}

// Metadata struct
// Contains EXIF and dimension information
type Metadata struct {
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ShutterSpeed *string  `json:"shutter_speed,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	LensModel    *string  `json:"lens_model,omitempty"`
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
	TakenAt      *int64   `json:"taken_at,omitempty"`
}
