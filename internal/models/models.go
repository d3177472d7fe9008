package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Enums
type Mood string

const (
	MoodEnergetic Mood = "energetic"
	MoodCalm      Mood = "calm"
	MoodDynamic   Mood = "dynamic"
)

type Genre string

const (
	GenreElectronic  Genre = "electronic"
	GenreRock        Genre = "rock"
	GenrePop         Genre = "pop"
	GenreAmbient     Genre = "ambient"
	GenreAlternative Genre = "alternative"
)

type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

// JobKind identifies the generation operation submitted to the service.
// It doubles as the cost-table key of the credit ledger.
type JobKind string

const (
	JobKindImage        JobKind = "image"
	JobKindImageToVideo JobKind = "image_to_video"
	JobKindTextToVideo  JobKind = "text_to_video"
)

type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the poller stops driving a job in this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut, JobStatusCancelled:
		return true
	}
	return false
}

type ClipKind string

const (
	ClipKindScene   ClipKind = "scene"
	ClipKindSpecial ClipKind = "special"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ErrInvalidFeatures is returned by AudioFeatures.Validate.
var ErrInvalidFeatures = errors.New("invalid audio features")

// AudioFeatures is the record produced by the external audio feature extractor.
// JSON names follow the extractor's output so it can be forwarded verbatim.
type AudioFeatures struct {
	Tempo            float64     `json:"tempo"`
	Energy           float64     `json:"energy"`
	Mood             Mood        `json:"mood"`
	Genre            Genre       `json:"genre"`
	EnergyLevel      EnergyLevel `json:"energy_level"`
	DurationSeconds  float64     `json:"duration"`
	SpectralCentroid float64     `json:"spectral_centroid"`
	ZeroCrossingRate float64     `json:"zero_crossing_rate"`
}

// FallbackFeatures is the record the extractor substitutes when analysis fails.
func FallbackFeatures() AudioFeatures {
	return AudioFeatures{
		Tempo:            120,
		Energy:           0.5,
		Mood:             MoodDynamic,
		Genre:            GenreAlternative,
		EnergyLevel:      EnergyMedium,
		DurationSeconds:  30,
		SpectralCentroid: 2000,
		ZeroCrossingRate: 0.1,
	}
}

// Validate checks that the record is fully populated with usable values.
// An empty genre is accepted; the planner files it under the alternative family.
func (f AudioFeatures) Validate() error {
	for name, v := range map[string]float64{
		"tempo":              f.Tempo,
		"energy":             f.Energy,
		"duration":           f.DurationSeconds,
		"spectral_centroid":  f.SpectralCentroid,
		"zero_crossing_rate": f.ZeroCrossingRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidFeatures, name)
		}
	}
	if f.Tempo <= 0 {
		return fmt.Errorf("%w: tempo must be positive, got %v", ErrInvalidFeatures, f.Tempo)
	}
	if f.Energy < 0 {
		return fmt.Errorf("%w: energy must not be negative, got %v", ErrInvalidFeatures, f.Energy)
	}
	if f.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %v", ErrInvalidFeatures, f.DurationSeconds)
	}

	switch f.Mood {
	case MoodEnergetic, MoodCalm, MoodDynamic:
	default:
		return fmt.Errorf("%w: unknown mood %q", ErrInvalidFeatures, f.Mood)
	}
	switch f.Genre {
	case "", GenreElectronic, GenreRock, GenrePop, GenreAmbient, GenreAlternative:
	default:
		return fmt.Errorf("%w: unknown genre %q", ErrInvalidFeatures, f.Genre)
	}
	switch f.EnergyLevel {
	case EnergyLow, EnergyMedium, EnergyHigh:
	default:
		return fmt.Errorf("%w: unknown energy_level %q", ErrInvalidFeatures, f.EnergyLevel)
	}
	return nil
}

func (f AudioFeatures) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *AudioFeatures) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// Models

type Scene struct {
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// ScenePlan is built once per run and never modified afterwards.
type ScenePlan struct {
	Style          string   `json:"style"`
	Scenes         []Scene  `json:"scenes"`
	SpecialMoments []string `json:"special_moments"`
}

// GenerationJob tracks a single submitted job while the poller drives it.
type GenerationJob struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Attempts  int       `json:"attempts"`
}

// TotalSteps is the fixed step budget of one orchestration run.
const TotalSteps = 6

type ProgressState struct {
	Step        string `json:"step"`
	Progress    int    `json:"progress"`
	CurrentStep int    `json:"current_step"`
	TotalSteps  int    `json:"total_steps"`
	IsComplete  bool   `json:"is_complete"`
}

type Clip struct {
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Kind        ClipKind `json:"type"`
}

type GenerationResult struct {
	Analysis        AudioFeatures `json:"music_analysis"`
	Plan            *ScenePlan    `json:"plan,omitempty"`
	Clips           []Clip        `json:"video_urls"`
	BudgetUsed      float64       `json:"budget_used"`
	BudgetRemaining float64       `json:"budget_remaining"`
}

func (r GenerationResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *GenerationResult) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// Run is one orchestration request as recorded by the run store.
type Run struct {
	ID           uuid.UUID         `json:"id"`
	Status       RunStatus         `json:"status"`
	Features     AudioFeatures     `json:"features"`
	Result       *GenerationResult `json:"result,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// DTOs for API responses

type CreateRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}

type ListRunsResponse struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type AnalyzeResponse struct {
	Status   string        `json:"status"`
	Analysis AudioFeatures `json:"analysis"`
	Plan     *ScenePlan    `json:"plan"`
	Message  string        `json:"message"`
}

type BudgetResponse struct {
	Used           float64 `json:"used"`
	Remaining      float64 `json:"remaining"`
	Total          float64 `json:"total"`
	PercentageUsed float64 `json:"percentage_used"`
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}
