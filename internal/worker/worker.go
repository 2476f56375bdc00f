// Package worker consumes processing jobs off the queue and hands them to
// the pipeline. Pipeline outcomes (including terminal failure) live on the
// record; only infrastructure-level problems are retried here.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clipstream/backend/internal/processing"
	"github.com/clipstream/backend/pkg/queue"
)

// Processor runs the queue consumption loop.
type Processor struct {
	orchestrator *processing.Orchestrator
	queue        *queue.Queue
	logger       *zap.Logger
}

// NewProcessor creates a video processing job consumer.
func NewProcessor(orchestrator *processing.Orchestrator, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{orchestrator: orchestrator, queue: q, logger: logger}
}

// Process executes one processing job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeProcessVideo {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ProcessVideoPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	err := p.orchestrator.Process(ctx, payload.VideoID)
	if errors.Is(err, processing.ErrAlreadyRunning) {
		// Another consumer owns this asset's run; dropping the duplicate
		// preserves the one-run-per-asset invariant.
		p.logger.Info("duplicate job for in-flight video dropped", zap.String("video_id", payload.VideoID.String()))
		return nil
	}
	return err
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("processing worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
