// Package progress holds the progress state of the orchestration run in flight.
package progress

import (
	"sync"

	"github.com/bobarin/beatreel/internal/models"
)

// Sink receives progress snapshots. Implementations must not block.
type Sink interface {
	Report(state models.ProgressState)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(models.ProgressState)

func (f SinkFunc) Report(state models.ProgressState) { f(state) }

// Discard drops every report.
var Discard Sink = SinkFunc(func(models.ProgressState) {})

// Tracker is a thread-safe ProgressState written by the orchestrator and
// read by any number of readers.
type Tracker struct {
	mu    sync.RWMutex
	state models.ProgressState
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset starts a new run at zero.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = models.ProgressState{Step: "Ready", TotalSteps: models.TotalSteps}
}

// Report applies a snapshot. Percent is clamped to [0,100] and never moves
// backwards within a run; a completed state is kept until Reset.
func (t *Tracker) Report(s models.ProgressState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.IsComplete {
		return
	}

	pct := clamp(s.Progress)
	if pct < t.state.Progress {
		pct = t.state.Progress
	}
	current := s.CurrentStep
	if current < t.state.CurrentStep {
		current = t.state.CurrentStep
	}

	t.state = models.ProgressState{
		Step:        s.Step,
		Progress:    pct,
		CurrentStep: current,
		TotalSteps:  models.TotalSteps,
		IsComplete:  s.IsComplete,
	}
	if s.IsComplete {
		t.state.Progress = 100
		t.state.CurrentStep = models.TotalSteps
	}
}

// Update is shorthand for Report with an incomplete state.
func (t *Tracker) Update(step string, percent, current int) {
	t.Report(models.ProgressState{Step: step, Progress: percent, CurrentStep: current})
}

// Complete marks the run finished at 100%.
func (t *Tracker) Complete(step string) {
	t.Report(models.ProgressState{Step: step, Progress: 100, CurrentStep: models.TotalSteps, IsComplete: true})
}

func (t *Tracker) Snapshot() models.ProgressState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Fanout broadcasts every report to each sink in order. Nil sinks are skipped.
type Fanout []Sink

func (f Fanout) Report(s models.ProgressState) {
	for _, sink := range f {
		if sink != nil {
			sink.Report(s)
		}
	}
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
