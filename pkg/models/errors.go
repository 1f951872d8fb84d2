package models

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Callers match with errors.Is.
var (
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrSigningError        = errors.New("signing error")
	ErrSubmissionFailed    = errors.New("transcode submission failed")
	ErrPollTransport       = errors.New("transcode status poll failed")
	ErrExternalJobRejected = errors.New("transcode job rejected by encoder")
	ErrNoPlayableRendition = errors.New("no playable rendition")
	ErrManifestGeneration  = errors.New("manifest generation error")
	ErrNotFound            = errors.New("not found")
	ErrJobInProgress       = errors.New("transcode job already in progress")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrUnknownPlan         = errors.New("unknown plan tier")
	ErrEncoderRejected     = errors.New("encoder rejected request")
	ErrInvalidLadder       = errors.New("invalid quality ladder")
	ErrConcurrentUpdate    = errors.New("record changed concurrently")
)

// NoPlayableReason explains why a resolve produced nothing
type NoPlayableReason string

// NoPlayableReason constants
const (
	ReasonNotReady          NoPlayableReason = "not_ready"
	ReasonNotEntitled       NoPlayableReason = "not_entitled"
	ReasonDeviceUnsupported NoPlayableReason = "device_unsupported"
)

// NoPlayableRenditionError carries the reason alongside ErrNoPlayableRendition
type NoPlayableRenditionError struct {
	AssetID string
	Reason  NoPlayableReason
}

func (e *NoPlayableRenditionError) Error() string {
	return fmt.Sprintf("%s for asset %s: %s", ErrNoPlayableRendition, e.AssetID, e.Reason)
}

// Is lets errors.Is match the sentinel
func (e *NoPlayableRenditionError) Is(target error) bool {
	return target == ErrNoPlayableRendition
}
