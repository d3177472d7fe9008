// Package orchestrator sequences one generation run: plan the scenes, generate
// an image and its animation per scene under the budget, then an optional
// special-moment clip.
//
// Budget policy: a scene starts only when the ledger can afford both of its
// jobs together, and every job is charged once the service accepts it and
// returns a job ID. A rejected submit costs nothing. A charge stands even
// when the service later fails the job.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bobarin/beatreel/internal/ledger"
	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/metrics"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/bobarin/beatreel/internal/poller"
	"github.com/bobarin/beatreel/internal/progress"
	"github.com/bobarin/beatreel/internal/services"
)

const (
	DefaultSceneCap               = 2
	DefaultSpecialEnergyThreshold = 0.7

	imageToVideoSeconds = 5
	textToVideoSeconds  = 6
)

// Progress checkpoints of a run. Scene progress is spread over [scenesStart, scenesEnd).
const (
	pctAnalyzing    = 5
	pctAnalyzed     = 15
	pctPlanning     = 20
	pctPlanned      = 25
	pctScenesStart  = 30
	pctScenesEnd    = 90
	pctSpecialStart = 90
	pctSpecialDone  = 95
)

// ScenePlanner builds the scene plan for a feature record.
type ScenePlanner interface {
	Plan(features models.AudioFeatures) (*models.ScenePlan, error)
}

// JobRunner submits jobs and waits for their terminal state.
type JobRunner interface {
	Submit(ctx context.Context, kind models.JobKind, req services.JobRequest) (string, error)
	Await(ctx context.Context, kind models.JobKind, jobID string) (*models.GenerationJob, error)
}

type Config struct {
	SceneCap               int
	SpecialEnergyThreshold float64
}

type Orchestrator struct {
	planner ScenePlanner
	jobs    JobRunner
	ledger  *ledger.Ledger
	cfg     Config
}

func New(planner ScenePlanner, jobs JobRunner, l *ledger.Ledger, cfg Config) *Orchestrator {
	if cfg.SceneCap <= 0 {
		cfg.SceneCap = DefaultSceneCap
	}
	if cfg.SpecialEnergyThreshold <= 0 {
		cfg.SpecialEnergyThreshold = DefaultSpecialEnergyThreshold
	}
	return &Orchestrator{planner: planner, jobs: jobs, ledger: l, cfg: cfg}
}

var errBudgetExhausted = errors.New("budget exhausted")

// run is the state of one Orchestrate call.
type run struct {
	ctx    context.Context
	sink   progress.Sink
	logger zerolog.Logger
	result *models.GenerationResult
}

func (r *run) report(step string, pct, current int) {
	r.sink.Report(models.ProgressState{
		Step:        step,
		Progress:    pct,
		CurrentStep: current,
		TotalSteps:  models.TotalSteps,
	})
}

// Orchestrate runs the whole pipeline for features. Per-job failures are
// logged and skipped, so a result with no clips is still a success. Only a
// planning failure returns an error without a result. When ctx ends, the
// partial result is returned with an error wrapping poller.ErrCancelled.
func (o *Orchestrator) Orchestrate(ctx context.Context, features models.AudioFeatures, sink progress.Sink) (*models.GenerationResult, error) {
	if sink == nil {
		sink = progress.Discard
	}
	r := &run{
		ctx:    ctx,
		sink:   sink,
		logger: xlog.WithComponent("orchestrator"),
		result: &models.GenerationResult{Analysis: features, Clips: []models.Clip{}},
	}

	// Step 1: the features arrive already extracted.
	r.report("Analyzing music", pctAnalyzing, 1)
	r.logger.Info().
		Float64("tempo", features.Tempo).
		Float64("energy", features.Energy).
		Str("genre", string(features.Genre)).
		Str("mood", string(features.Mood)).
		Msg("music analysis received")
	r.report("Music analysis complete", pctAnalyzed, 1)

	// Step 2
	r.report("Planning video scenes", pctPlanning, 2)
	plan, err := o.planner.Plan(features)
	if err != nil {
		metrics.RecordRun("failed")
		return nil, fmt.Errorf("failed to plan scenes: %w", err)
	}
	r.result.Plan = plan
	r.logger.Info().Str("style", plan.Style).Int("scenes", len(plan.Scenes)).Msg("scene plan ready")
	r.report(fmt.Sprintf("Planned %d %s scenes", len(plan.Scenes), plan.Style), pctPlanned, 2)

	// Step 3
	if err := o.generateScenes(r, plan); err != nil {
		return o.finish(r, err)
	}

	// Step 4
	if err := o.generateSpecialMoment(r, plan, features); err != nil {
		return o.finish(r, err)
	}

	// Steps 5 and 6
	return o.finish(r, nil)
}

func (o *Orchestrator) generateScenes(r *run, plan *models.ScenePlan) error {
	n := len(plan.Scenes)
	if n > o.cfg.SceneCap {
		n = o.cfg.SceneCap
	}
	if n == 0 {
		return nil
	}
	span := (pctScenesEnd - pctScenesStart) / n

	for i := 0; i < n; i++ {
		if err := r.ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", poller.ErrCancelled, err)
		}

		base := pctScenesStart + span*i
		r.report(fmt.Sprintf("Creating scene %d of %d", i+1, n), base, 3)

		err := o.generateScene(r, i, plan.Scenes[i], base, span)
		switch {
		case err == nil:
			r.report(fmt.Sprintf("Scene %d complete", i+1), base+span/2, 3)
		case errors.Is(err, errBudgetExhausted):
			r.logger.Warn().Int("scene", i+1).Float64("remaining", o.ledger.RemainingBudget()).Msg("budget exhausted, stopping scene generation")
			return nil
		case errors.Is(err, poller.ErrCancelled):
			return err
		default:
			r.logger.Warn().Err(err).Int("scene", i+1).Msg("scene skipped")
		}
	}
	return nil
}

// generateScene runs the image job then the animation job of one scene.
func (o *Orchestrator) generateScene(r *run, i int, scene models.Scene, base, span int) error {
	if !o.ledger.CanAffordAll(models.JobKindImage, models.JobKindImageToVideo) {
		metrics.RecordBudgetRejection(string(models.JobKindImage))
		return errBudgetExhausted
	}

	r.report(fmt.Sprintf("Generating image for scene %d", i+1), base+span/6, 3)
	image, err := o.runJob(r, models.JobKindImage, services.JobRequest{Prompt: scene.ImagePrompt})
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}

	r.report(fmt.Sprintf("Animating scene %d", i+1), base+span/3, 3)
	video, err := o.runJob(r, models.JobKindImageToVideo, services.JobRequest{
		Prompt:      scene.VideoPrompt,
		ImageURL:    image.ResultURL,
		DurationSec: imageToVideoSeconds,
	})
	if err != nil {
		return fmt.Errorf("animation: %w", err)
	}

	r.result.Clips = append(r.result.Clips, models.Clip{
		URL:         video.ResultURL,
		Description: scene.VideoPrompt,
		Kind:        models.ClipKindScene,
	})
	metrics.RecordClip(string(models.ClipKindScene))
	r.logger.Info().Int("scene", i+1).Str("url", video.ResultURL).Msg("scene clip ready")
	return nil
}

func (o *Orchestrator) generateSpecialMoment(r *run, plan *models.ScenePlan, features models.AudioFeatures) error {
	if features.Energy <= o.cfg.SpecialEnergyThreshold || len(plan.SpecialMoments) == 0 {
		return nil
	}
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", poller.ErrCancelled, err)
	}

	prompt := plan.SpecialMoments[0]
	r.report("Creating special moment", pctSpecialStart, 4)

	video, err := o.runJob(r, models.JobKindTextToVideo, services.JobRequest{Prompt: prompt, DurationSec: textToVideoSeconds})
	switch {
	case err == nil:
		r.result.Clips = append(r.result.Clips, models.Clip{URL: video.ResultURL, Description: prompt, Kind: models.ClipKindSpecial})
		metrics.RecordClip(string(models.ClipKindSpecial))
		r.report("Special moment complete", pctSpecialDone, 4)
		return nil
	case errors.Is(err, poller.ErrCancelled):
		return err
	case errors.Is(err, errBudgetExhausted):
		r.logger.Info().Float64("remaining", o.ledger.RemainingBudget()).Msg("special moment skipped for budget")
	default:
		r.logger.Warn().Err(err).Msg("special moment skipped")
	}
	return nil
}

// runJob submits one job, charges it once accepted and waits for its
// terminal state.
func (o *Orchestrator) runJob(r *run, kind models.JobKind, req services.JobRequest) (*models.GenerationJob, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", poller.ErrCancelled, err)
	}
	if !o.ledger.CanAfford(kind, 1) {
		metrics.RecordBudgetRejection(string(kind))
		return nil, errBudgetExhausted
	}

	jobID, err := o.jobs.Submit(r.ctx, kind, req)
	if err != nil {
		return nil, err
	}
	o.ledger.Charge(kind, 1)
	r.logger.Debug().Str("kind", string(kind)).Str("job_id", jobID).Float64("used", o.ledger.Used()).Msg("job charged")

	return o.jobs.Await(r.ctx, kind, jobID)
}

func (o *Orchestrator) finish(r *run, err error) (*models.GenerationResult, error) {
	snap := o.ledger.Snapshot()
	r.result.BudgetUsed = snap.Used
	r.result.BudgetRemaining = snap.Remaining

	if err != nil {
		metrics.RecordRun("cancelled")
		r.logger.Warn().Err(err).Int("clips", len(r.result.Clips)).Msg("run cancelled")
		return r.result, err
	}

	r.sink.Report(models.ProgressState{
		Step:        "Video generation complete!",
		Progress:    100,
		CurrentStep: models.TotalSteps,
		TotalSteps:  models.TotalSteps,
		IsComplete:  true,
	})

	outcome := "completed"
	if len(r.result.Clips) == 0 {
		outcome = "empty"
	}
	metrics.RecordRun(outcome)
	r.logger.Info().
		Int("clips", len(r.result.Clips)).
		Float64("budget_used", snap.Used).
		Float64("budget_remaining", snap.Remaining).
		Msg("run complete")
	return r.result, nil
}
