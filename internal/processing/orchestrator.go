// Package processing drives an uploaded video through the pipeline:
// metadata extraction, content classification, finalization. For each asset
// record mutations and published events occur in strict pipeline order, and
// at most one run per asset is active at a time.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/realtime"
	"github.com/clipstream/backend/pkg/storage"
)

var (
	// ErrVideoNotFound means the job referenced a record that no longer exists.
	ErrVideoNotFound = errors.New("video not found")
	// ErrAlreadyRunning means a pipeline run for this asset is in flight.
	ErrAlreadyRunning = errors.New("pipeline already running for this video")
)

// RecordStore is the slice of the video repository the pipeline mutates.
// The pipeline is the record's only writer after intake.
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	SetProcessing(ctx context.Context, id uuid.UUID, progress int) error
	SetMediaMetadata(ctx context.Context, id uuid.UUID, durationSeconds float64, md models.MediaMetadata, progress int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetClassification(ctx context.Context, id uuid.UUID, classification string, progress int) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// EventPublisher fans pipeline events out to tenant subscribers. Injected at
// construction: the server hands in the hub, a standalone worker hands in the
// Redis bridge.
type EventPublisher interface {
	PublishToTenant(tenant, videoID, event string, payload interface{})
}

// Timeouts bound the collaborator calls; a hung collaborator becomes that
// step's failure mode.
type Timeouts struct {
	Extract  time.Duration
	Classify time.Duration
}

// Orchestrator runs processing pipelines. Safe for concurrent use; distinct
// assets process independently.
type Orchestrator struct {
	records    RecordStore
	store      storage.Store
	extractor  MetadataExtractor
	classifier Classifier
	publisher  EventPublisher
	timeouts   Timeouts
	logger     *zap.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(records RecordStore, store storage.Store, extractor MetadataExtractor, classifier Classifier, publisher EventPublisher, timeouts Timeouts, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		records:    records,
		store:      store,
		extractor:  extractor,
		classifier: classifier,
		publisher:  publisher,
		timeouts:   timeouts,
		logger:     logger,
		inflight:   make(map[uuid.UUID]struct{}),
	}
}

// Process runs the full pipeline for one video. Returns ErrAlreadyRunning if
// a run for the same asset is in flight, ErrVideoNotFound if the record is
// gone. Pipeline failures are terminal on the record (state=failed) and are
// not returned as errors: there is no automatic retry.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	if !o.acquire(id) {
		return ErrAlreadyRunning
	}
	defer o.release(id)

	v, err := o.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if v == nil {
		return ErrVideoNotFound
	}
	if v.State != models.VideoStateUploading {
		// Re-delivered job for a record already picked up or terminal.
		o.logger.Info("skipping video not awaiting processing",
			zap.String("video_id", id.String()), zap.String("state", v.State))
		return nil
	}

	progress := v.Progress

	if err := o.records.SetProcessing(ctx, id, 10); err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("mark processing: %w", err))
		return nil
	}
	progress = 10
	o.publishProgress(v, progress, "")

	localPath, cleanup, err := o.materialize(ctx, v.StorageKey)
	if err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("read payload: %w", err))
		return nil
	}
	defer cleanup()

	// Metadata extraction is optional: failure is logged and the pipeline
	// continues without media metadata.
	extractCtx, cancelExtract := context.WithTimeout(ctx, o.timeouts.Extract)
	info, err := o.extractor.Extract(extractCtx, localPath)
	cancelExtract()
	if err != nil {
		o.logger.Warn("metadata extraction failed, continuing without metadata",
			zap.String("video_id", id.String()), zap.Error(err))
	} else {
		if err := o.records.SetMediaMetadata(ctx, id, info.DurationSeconds, info.Metadata, 50); err != nil {
			o.fail(ctx, v, progress, fmt.Errorf("store metadata: %w", err))
			return nil
		}
		v.DurationSeconds = info.DurationSeconds
		v.Metadata = &info.Metadata
		progress = 50
		o.publishProgress(v, progress, "")
	}

	if err := o.records.UpdateProgress(ctx, id, 70); err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("update progress: %w", err))
		return nil
	}
	progress = 70
	o.publishProgress(v, progress, "")

	// Classification is mandatory: error or timeout fails the run.
	classifyCtx, cancelClassify := context.WithTimeout(ctx, o.timeouts.Classify)
	result, err := o.classifier.Classify(classifyCtx, localPath)
	cancelClassify()
	if err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("classify: %w", err))
		return nil
	}

	if err := o.records.SetClassification(ctx, id, result.Classification, 90); err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("store classification: %w", err))
		return nil
	}
	progress = 90
	o.publishProgress(v, progress, result.Classification)

	if err := o.records.MarkCompleted(ctx, id); err != nil {
		o.fail(ctx, v, progress, fmt.Errorf("mark completed: %w", err))
		return nil
	}
	o.publisher.PublishToTenant(v.Tenant, id.String(), realtime.EventComplete, StatusEvent{
		VideoID:         id.String(),
		Progress:        100,
		State:           models.VideoStateCompleted,
		Classification:  result.Classification,
		DurationSeconds: v.DurationSeconds,
		Metadata:        v.Metadata,
	})

	o.logger.Info("video processed",
		zap.String("video_id", id.String()),
		zap.String("classification", result.Classification),
		zap.Float64("confidence", result.Confidence))
	return nil
}

func (o *Orchestrator) acquire(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return false
	}
	o.inflight[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) publishProgress(v *models.Video, progress int, classification string) {
	o.publisher.PublishToTenant(v.Tenant, v.ID.String(), realtime.EventProgress, StatusEvent{
		VideoID:        v.ID.String(),
		Progress:       progress,
		State:          models.VideoStateProcessing,
		Classification: classification,
	})
}

// fail moves the record to its terminal failed state and publishes the
// failure event. Progress stays at its last recorded value.
func (o *Orchestrator) fail(ctx context.Context, v *models.Video, progress int, cause error) {
	o.logger.Error("pipeline failed",
		zap.String("video_id", v.ID.String()), zap.Error(cause))
	if err := o.records.MarkFailed(ctx, v.ID); err != nil {
		o.logger.Error("mark failed errored",
			zap.String("video_id", v.ID.String()), zap.Error(err))
	}
	o.publisher.PublishToTenant(v.Tenant, v.ID.String(), realtime.EventError, StatusEvent{
		VideoID:  v.ID.String(),
		Progress: progress,
		State:    models.VideoStateFailed,
		Error:    cause.Error(),
	})
}

// materialize yields a local filesystem path for the payload so subprocess
// collaborators can read it. Local storage short-circuits; remote backends
// are streamed to a temp file that cleanup removes.
func (o *Orchestrator) materialize(ctx context.Context, key string) (string, func(), error) {
	noop := func() {}
	if lp, ok := o.store.(storage.LocalPather); ok {
		if p, ok := lp.LocalPath(key); ok {
			return p, noop, nil
		}
	}

	rc, err := o.store.Open(ctx, key)
	if err != nil {
		return "", noop, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "pipeline-*"+path.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("copy payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("close temp file: %w", err)
	}
	name := tmp.Name()
	return name, func() { _ = os.Remove(name) }, nil
}
