package processing

import "github.com/clipstream/backend/internal/models"

// StatusEvent is the payload published on every pipeline transition. It is
// self-contained (absolute progress and state keyed by video id) so clients
// can apply events independently of delivery order across assets. The three
// event kinds (progress, complete, error) differ only in which optional
// fields are populated.
type StatusEvent struct {
	VideoID         string                `json:"video_id"`
	Progress        int                   `json:"progress"`
	State           string                `json:"state"`
	Classification  string                `json:"classification,omitempty"`
	DurationSeconds float64               `json:"duration_seconds,omitempty"`
	Metadata        *models.MediaMetadata `json:"metadata,omitempty"`
	Error           string                `json:"error,omitempty"`
}
