package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoState is the processing lifecycle state of an uploaded video.
// uploading and processing are non-terminal; completed and failed are
// terminal and never transition again.
const (
	VideoStateUploading  = "uploading"
	VideoStateProcessing = "processing"
	VideoStateCompleted  = "completed"
	VideoStateFailed     = "failed"
)

// Classification is the content-analysis verdict. It starts pending and is
// set exactly once by the pipeline.
const (
	ClassificationPending = "pending"
	ClassificationSafe    = "safe"
	ClassificationFlagged = "flagged"
)

// MediaMetadata holds the properties reported by the metadata extractor.
// All fields are absent until extraction succeeds; extraction failure is
// tolerated and leaves them empty.
type MediaMetadata struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Bitrate int64  `json:"bitrate,omitempty"`
	Codec   string `json:"codec,omitempty"`
}

// Video is the durable record for one uploaded asset. After intake the
// processing pipeline is its only writer.
type Video struct {
	ID              uuid.UUID      `json:"id"`
	Tenant          string         `json:"tenant"`
	OwnerID         uuid.UUID      `json:"owner_id"`
	Title           string         `json:"title"`
	State           string         `json:"state"`
	Progress        int            `json:"progress"`
	Classification  string         `json:"classification"`
	StorageKey      string         `json:"-"`
	SizeBytes       int64          `json:"size_bytes"`
	MimeType        string         `json:"mime_type"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Metadata        *MediaMetadata `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Terminal reports whether the video has reached a state that never
// transitions again.
func (v *Video) Terminal() bool {
	return v.State == VideoStateCompleted || v.State == VideoStateFailed
}
