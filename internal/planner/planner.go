// Package planner turns an audio-feature record into a reproducible scene plan.
//
// Plans are deterministic: the scene subset is drawn from a pseudo-random
// source seeded from the features themselves, so identical features always
// produce an identical plan.
package planner

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"github.com/bobarin/beatreel/internal/models"
)

// DefaultSceneCap is the number of scenes selected per plan.
const DefaultSceneCap = 2

// fallbackSeed replaces zero or negative seeds, which would otherwise collapse
// every quiet track onto the same degenerate draw.
const fallbackSeed int64 = 1

// ErrPlanning is returned when no plan can be built from the features.
var ErrPlanning = errors.New("scene planning failed")

type Planner struct {
	sceneCap int
}

// New creates a planner selecting up to sceneCap scenes (DefaultSceneCap when <= 0).
func New(sceneCap int) *Planner {
	if sceneCap <= 0 {
		sceneCap = DefaultSceneCap
	}
	return &Planner{sceneCap: sceneCap}
}

// Plan builds the scene plan for features.
func (p *Planner) Plan(features models.AudioFeatures) (*models.ScenePlan, error) {
	if err := features.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanning, err)
	}

	fam := classify(features.Genre, features.Mood)
	catalogue := fam.catalogue(string(features.EnergyLevel))
	if len(catalogue) == 0 {
		return nil, fmt.Errorf("%w: style %q has no scenes for energy level %q", ErrPlanning, fam.style, features.EnergyLevel)
	}

	tempo := formatTempo(features.Tempo)
	cue := MotionIntensity(features.Tempo)

	picked := selectIndexes(Seed(features), len(catalogue), p.sceneCap)
	scenes := make([]models.Scene, 0, len(picked))
	for _, i := range picked {
		tmpl := catalogue[i]
		scenes = append(scenes, models.Scene{
			ImagePrompt: tmpl.imagePrompt,
			VideoPrompt: fmt.Sprintf(tmpl.videoPrompt, tempo) + ", " + cue + " motion synced to the music",
		})
	}

	return &models.ScenePlan{
		Style:          fam.style,
		Scenes:         scenes,
		SpecialMoments: []string{fam.specialMoment},
	}, nil
}

// classify applies the style rules in order; anything unmatched, including a
// missing genre, lands in the alternative family.
func classify(genre models.Genre, mood models.Mood) family {
	switch {
	case genre == models.GenreElectronic && mood == models.MoodEnergetic:
		return electronicFamily
	case genre == models.GenreRock && mood == models.MoodEnergetic:
		return rockFamily
	case genre == models.GenreAmbient && mood == models.MoodCalm:
		return ambientFamily
	case genre == models.GenrePop:
		return popFamily
	default:
		return alternativeFamily
	}
}

// Seed derives the selector seed: floor(tempo * energy * spectralCentroid).
func Seed(f models.AudioFeatures) int64 {
	product := math.Floor(f.Tempo * f.Energy * f.SpectralCentroid)
	if math.IsNaN(product) || product <= 0 {
		return fallbackSeed
	}
	if product >= math.MaxInt64 {
		product = math.Mod(product, 1<<62)
		if product <= 0 {
			return fallbackSeed
		}
	}
	return int64(product)
}

// selectIndexes draws min(k, n) distinct indexes from [0, n) and returns them
// in ascending order so the plan keeps catalogue order.
func selectIndexes(seed int64, n, k int) []int {
	if k > n {
		k = n
	}
	r := rand.New(rand.NewSource(seed))
	picked := r.Perm(n)[:k]
	sort.Ints(picked)
	return picked
}

// MotionIntensity buckets tempo into the motion cue appended to video prompts.
func MotionIntensity(tempo float64) string {
	switch {
	case tempo < 90:
		return "gentle"
	case tempo < 130:
		return "dynamic"
	default:
		return "intense"
	}
}

func formatTempo(tempo float64) string {
	return strconv.FormatFloat(tempo, 'f', -1, 64)
}
