package models

// QualityLevel is a single rung of the quality ladder. Values are owned by the
// ladder registry and never mutated after registration.
type QualityLevel struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	BitrateKbps  int        `json:"bitrate_kbps"`
	Resolution   Resolution `json:"resolution"`
	BandwidthBps int64      `json:"bandwidth_bps"`
}

// Quality level identifiers used by the default ladder
const (
	QualitySD360   = "sd360"
	QualitySD480   = "sd480"
	QualityHD720   = "hd720"
	QualityHD1080  = "hd1080"
	QualityUHD2160 = "uhd2160"
)
