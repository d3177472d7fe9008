// Package poller drives one submitted generation job to a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/metrics"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/bobarin/beatreel/internal/services"
)

const (
	DefaultMaxAttempts    = 40
	DefaultInterval       = 2 * time.Second
	DefaultErrorBackoff   = 3 * time.Second
	DefaultUnknownBackoff = 5 * time.Second
	DefaultSubmitRetries  = 3
	DefaultSubmitBackoff  = time.Second
)

var (
	// ErrJobTimedOut means MaxAttempts status queries never reached a terminal state.
	ErrJobTimedOut = errors.New("job timed out")
	// ErrMalformedResult means a completed job carried no result URL.
	ErrMalformedResult = errors.New("completed job has no result url")
	// ErrCancelled means the caller's context ended before the job finished.
	ErrCancelled = errors.New("job cancelled")
)

// JobFailedError carries the failure message reported by the service.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

type Config struct {
	MaxAttempts    int
	Interval       time.Duration // between pending reports
	ErrorBackoff   time.Duration // after transport errors and all-routes-missing
	UnknownBackoff time.Duration // after an unrecognised status string
	Routes         []string      // status routes in priority order
	SubmitRetries  int
	SubmitBackoff  time.Duration // initial submit retry interval
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.UnknownBackoff <= 0 {
		c.UnknownBackoff = DefaultUnknownBackoff
	}
	if len(c.Routes) == 0 {
		c.Routes = services.HiggsfieldStatusRoutes
	}
	if c.SubmitRetries <= 0 {
		c.SubmitRetries = DefaultSubmitRetries
	}
	if c.SubmitBackoff <= 0 {
		c.SubmitBackoff = DefaultSubmitBackoff
	}
	return c
}

type Poller struct {
	transport services.Transport
	cfg       Config
}

func New(transport services.Transport, cfg Config) *Poller {
	return &Poller{transport: transport, cfg: cfg.withDefaults()}
}

// Submit starts a job, retrying transient submit errors with exponential
// backoff. Errors the service marked as rejected are returned after one try.
// A failed submit is recorded as a job outcome here since no Await follows.
func (p *Poller) Submit(ctx context.Context, kind models.JobKind, req services.JobRequest) (string, error) {
	logger := xlog.WithComponent("poller")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.SubmitBackoff

	jobID, err := backoff.Retry(ctx, func() (string, error) {
		id, err := p.transport.Submit(ctx, kind, req)
		if err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("submit failed")
			if errors.Is(err, services.ErrSubmitRejected) {
				return "", backoff.Permanent(err)
			}
		}
		return id, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.cfg.SubmitRetries)))

	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case err != nil:
		err = fmt.Errorf("failed to submit %s job: %w", kind, err)
	default:
		return jobID, nil
	}
	metrics.RecordJobOutcome(string(kind), outcome(err))
	return "", err
}

// Poll queries the job until it reaches a terminal state. The returned job
// is never nil; its Status tells which terminal state was reached.
func (p *Poller) Poll(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	logger := xlog.WithComponent("poller").With().Str("job_id", jobID).Logger()
	job := &models.GenerationJob{ID: jobID, Status: models.JobStatusSubmitted}
	defer func() { metrics.ObservePollAttempts(job.Attempts) }()

	route := 0 // last route that answered

	for job.Attempts < p.cfg.MaxAttempts {
		if ctx.Err() != nil {
			job.Status = models.JobStatusCancelled
			return job, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		job.Attempts++

		st, answered, err := p.fetch(ctx, jobID, route)
		var wait time.Duration

		switch {
		case err != nil && errors.Is(err, services.ErrRouteNotFound):
			logger.Warn().Int("attempt", job.Attempts).Msg("no status route recognised the job")
			wait = p.cfg.ErrorBackoff

		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			logger.Warn().Err(err).Int("attempt", job.Attempts).Msg("status query failed")
			wait = p.cfg.ErrorBackoff

		default:
			route = answered
			job.Status = models.JobStatusPending

			switch status := strings.ToLower(strings.TrimSpace(st.Status)); status {
			case "completed":
				url := st.URL()
				if url == "" {
					job.Status = models.JobStatusFailed
					return job, fmt.Errorf("%w: job %s", ErrMalformedResult, jobID)
				}
				job.Status = models.JobStatusCompleted
				job.ResultURL = url
				logger.Info().Int("attempts", job.Attempts).Msg("job completed")
				return job, nil

			case "failed":
				job.Status = models.JobStatusFailed
				return job, &JobFailedError{JobID: jobID, Message: st.Error}

			case "pending", "running", "queued", "in_progress", "inprogress":
				wait = p.cfg.Interval

			default:
				logger.Warn().Str("status", st.Status).Int("attempt", job.Attempts).Msg("unknown job status")
				wait = p.cfg.UnknownBackoff
			}
		}

		if job.Attempts < p.cfg.MaxAttempts {
			if err := sleep(ctx, wait); err != nil {
				job.Status = models.JobStatusCancelled
				return job, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}
	}

	if ctx.Err() != nil {
		job.Status = models.JobStatusCancelled
		return job, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	job.Status = models.JobStatusTimedOut
	logger.Warn().Int("attempts", job.Attempts).Msg("job timed out")
	return job, fmt.Errorf("%w: %s after %d attempts", ErrJobTimedOut, jobID, job.Attempts)
}

// Await polls a submitted job of the given kind to a terminal state and
// records its outcome.
func (p *Poller) Await(ctx context.Context, kind models.JobKind, jobID string) (*models.GenerationJob, error) {
	job, err := p.Poll(ctx, jobID)
	job.Kind = kind
	metrics.RecordJobOutcome(string(kind), outcome(err))
	return job, err
}

// Run submits a job and polls it to completion.
func (p *Poller) Run(ctx context.Context, kind models.JobKind, req services.JobRequest) (*models.GenerationJob, error) {
	jobID, err := p.Submit(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	return p.Await(ctx, kind, jobID)
}

// fetch tries each route once, starting at start and wrapping around. It
// returns the index of the route that answered.
func (p *Poller) fetch(ctx context.Context, jobID string, start int) (*services.JobStatus, int, error) {
	n := len(p.cfg.Routes)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		st, err := p.transport.FetchStatus(ctx, p.cfg.Routes[idx], jobID)
		if err == nil {
			if st == nil {
				return nil, idx, fmt.Errorf("empty status for job %s", jobID)
			}
			return st, idx, nil
		}
		if !errors.Is(err, services.ErrRouteNotFound) {
			return nil, idx, err
		}
	}
	return nil, start, services.ErrRouteNotFound
}

func outcome(err error) string {
	var failed *JobFailedError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrJobTimedOut):
		return "timed_out"
	case errors.Is(err, ErrMalformedResult):
		return "malformed"
	case errors.As(err, &failed):
		return "failed"
	}
	return "submit_failed"
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
