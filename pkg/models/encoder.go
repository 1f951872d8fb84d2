package models

// ExternalState is the coarse status reported by the transcoding engine
type ExternalState string

// ExternalState constants
const (
	// ExternalQueued means the encode is accepted but no worker has started it
	ExternalQueued     ExternalState = "queued"
	ExternalInProgress ExternalState = "in-progress"
	ExternalSuccess    ExternalState = "success"
	ExternalError      ExternalState = "error"
	ExternalCancelled  ExternalState = "cancelled"
)

// EncodeJobDescription is what gets handed to the transcoding engine
type EncodeJobDescription struct {
	JobID              string         `json:"job_id"`
	InputKey           string         `json:"input_key"`
	OutputPrefix       string         `json:"output_prefix"`
	RequestedQualities []QualityLevel `json:"requested_qualities"`
}

// EncodedOutput is one quality the engine produced
type EncodedOutput struct {
	QualityID string `json:"quality_id"`
	Key       string `json:"key"`
}

// ExternalStatus is the engine's answer to a status query
type ExternalStatus struct {
	State   ExternalState   `json:"state"`
	Outputs []EncodedOutput `json:"outputs,omitempty"`
	Message string          `json:"message,omitempty"`
}
