package models

// SubtitleTrack is a caption file offered alongside a stream
type SubtitleTrack struct {
	Language  string `json:"language"`
	Label     string `json:"label,omitempty"`
	Format    string `json:"format"`
	URL       string `json:"url"`
	IsDefault bool   `json:"is_default"`
}

// Subtitle is a stored caption file for an asset
type Subtitle struct {
	AssetID    string `json:"asset_id" db:"asset_id"`
	Language   string `json:"language" db:"language"`
	Label      string `json:"label,omitempty" db:"label"`
	Format     string `json:"format" db:"format"`
	StorageKey string `json:"storage_key" db:"storage_key"`
	IsDefault  bool   `json:"is_default" db:"is_default"`
}

// SubtitleFormat constants
const (
	SubtitleFormatVTT = "vtt"
	SubtitleFormatSRT = "srt"
)
