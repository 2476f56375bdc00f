package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/clipstream/backend/internal/models"
)

// MediaInfo is what the metadata extractor reports for a payload.
type MediaInfo struct {
	DurationSeconds float64
	Metadata        models.MediaMetadata
}

// MetadataExtractor probes a video file for duration, resolution, codec and
// bitrate. Failure is tolerated by the pipeline: the record simply stays
// without media metadata.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) (*MediaInfo, error)
}

// FFProbeExtractor shells out to ffprobe with JSON output.
type FFProbeExtractor struct {
	bin string
}

// NewFFProbeExtractor creates an extractor using the ffprobe binary on PATH.
func NewFFProbeExtractor() *FFProbeExtractor {
	return &FFProbeExtractor{bin: "ffprobe"}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Extract runs ffprobe on the file. The caller bounds ctx; a hung probe is
// killed when the deadline passes.
func (e *FFProbeExtractor) Extract(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, e.bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	info.DurationSeconds, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	info.Metadata.Bitrate, _ = strconv.ParseInt(probe.Format.BitRate, 10, 64)
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			info.Metadata.Width = s.Width
			info.Metadata.Height = s.Height
			info.Metadata.Codec = s.CodecName
			break
		}
	}
	if info.Metadata.Codec == "" {
		info.Metadata.Codec = "unknown"
	}
	return info, nil
}
