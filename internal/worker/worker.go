package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/beatreel/internal/db"
	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/bobarin/beatreel/internal/progress"
	"github.com/bobarin/beatreel/internal/queue"
	"github.com/bobarin/beatreel/internal/storage"
)

const defaultDequeueTimeout = 5 * time.Second

// Orchestrator runs one generation pipeline.
type Orchestrator interface {
	Orchestrate(ctx context.Context, features models.AudioFeatures, sink progress.Sink) (*models.GenerationResult, error)
}

// RunQueue hands out queued runs.
type RunQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

type Worker struct {
	store          db.RunStore
	queue          RunQueue
	storage        *storage.Storage // optional: nil or unconfigured skips manifests
	orchestrator   Orchestrator
	tracker        *progress.Tracker
	mirror         progress.Sink // optional: cross-instance progress copy
	dequeueTimeout time.Duration
}

func New(
	store db.RunStore,
	q RunQueue,
	stor *storage.Storage,
	orch Orchestrator,
	tracker *progress.Tracker,
	mirror progress.Sink,
) *Worker {
	return &Worker{
		store:          store,
		queue:          q,
		storage:        stor,
		orchestrator:   orch,
		tracker:        tracker,
		mirror:         mirror,
		dequeueTimeout: defaultDequeueTimeout,
	}
}

// Start consumes queued runs with concurrency consumers until ctx ends.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := xlog.WithComponent("worker")
	logger.Info().Int("concurrency", concurrency).Msg("worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			w.processQueue(ctx)
			return nil
		})
	}

	err := g.Wait()
	logger.Info().Msg("worker stopped")
	return err
}

func (w *Worker) processQueue(ctx context.Context) {
	logger := xlog.WithComponent("worker")
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx, queue.QueueRuns, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("failed to dequeue")
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			continue // No job available, retry
		}

		if err := w.handleRun(ctx, job.RunID); err != nil {
			logger.Error().Err(err).Str("run_id", job.RunID.String()).Msg("run failed")
		}
	}
}

// handleRun orchestrates one stored run and records its outcome.
func (w *Worker) handleRun(ctx context.Context, runID uuid.UUID) error {
	logger := xlog.WithComponent("worker").With().Str("run_id", runID.String()).Logger()

	run, err := w.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if err := w.store.MarkRunRunning(ctx, runID); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	logger.Info().Str("genre", string(run.Features.Genre)).Msg("processing run")

	w.tracker.Reset()
	sink := progress.Fanout{w.tracker, w.mirror}

	result, runErr := w.orchestrator.Orchestrate(ctx, run.Features, sink)

	// Record the outcome even when ctx was cancelled mid-run.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	status := models.RunStatusCompleted
	if runErr != nil {
		status = models.RunStatusFailed
		if err := w.store.FailRun(recordCtx, runID, runErr.Error(), result); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to record failure: %w", err))
		}
	} else if err := w.store.CompleteRun(recordCtx, runID, result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	if w.storage.Configured() {
		manifest := storage.Manifest{RunID: runID, Status: status, Result: result}
		if runErr != nil {
			manifest.Error = runErr.Error()
		}
		url, err := w.storage.UploadManifest(recordCtx, manifest)
		if err != nil {
			logger.Warn().Err(err).Msg("manifest upload failed")
		} else {
			logger.Info().Str("manifest", url).Msg("manifest uploaded")
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info().Int("clips", len(result.Clips)).Msg("run completed")
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
