package models

import "time"

// Asset is an uploaded source media file
type Asset struct {
	ID              string    `json:"id" db:"id"`
	SourceKey       string    `json:"source_key" db:"source_key"`
	Title           string    `json:"title" db:"title"`
	DurationSeconds float64   `json:"duration_seconds" db:"duration_seconds"`
	PosterKey       string    `json:"poster_key,omitempty" db:"poster_key"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Rendition is one encoded quality of an asset
type Rendition struct {
	AssetID    string    `json:"asset_id" db:"asset_id"`
	QualityID  string    `json:"quality_id" db:"quality_id"`
	StorageKey string    `json:"storage_key" db:"storage_key"`
	Ready      bool      `json:"ready" db:"ready"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
