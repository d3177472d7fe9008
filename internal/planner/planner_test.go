package planner

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/bobarin/beatreel/internal/models"
	"github.com/google/go-cmp/cmp"
)

func electronicHigh() models.AudioFeatures {
	return models.AudioFeatures{
		Tempo:            135,
		Energy:           0.8,
		Mood:             models.MoodEnergetic,
		Genre:            models.GenreElectronic,
		EnergyLevel:      models.EnergyHigh,
		DurationSeconds:  180,
		SpectralCentroid: 2600,
		ZeroCrossingRate: 0.11,
	}
}

func ambientLow() models.AudioFeatures {
	return models.AudioFeatures{
		Tempo:            72,
		Energy:           0.2,
		Mood:             models.MoodCalm,
		Genre:            models.GenreAmbient,
		EnergyLevel:      models.EnergyLow,
		DurationSeconds:  240,
		SpectralCentroid: 1200,
		ZeroCrossingRate: 0.04,
	}
}

// catalogueIndex returns the position of the scene's image prompt in catalogue, or -1.
func catalogueIndex(catalogue []sceneTemplate, s models.Scene) int {
	for i, tmpl := range catalogue {
		if tmpl.imagePrompt == s.ImagePrompt {
			return i
		}
	}
	return -1
}

func TestPlanIsDeterministic(t *testing.T) {
	p := New(DefaultSceneCap)

	for _, f := range []models.AudioFeatures{electronicHigh(), ambientLow(), models.FallbackFeatures()} {
		first, err := p.Plan(f)
		if err != nil {
			t.Fatalf("plan failed: %v", err)
		}
		for i := 0; i < 20; i++ {
			again, err := p.Plan(f)
			if err != nil {
				t.Fatalf("plan failed: %v", err)
			}
			if diff := cmp.Diff(first, again); diff != "" {
				t.Fatalf("plan changed between calls (-first +again):\n%s", diff)
			}
		}
	}
}

func TestPlanElectronicHighEnergy(t *testing.T) {
	plan, err := New(DefaultSceneCap).Plan(electronicHigh())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if plan.Style != "cyberpunk" {
		t.Errorf("style = %q, want cyberpunk", plan.Style)
	}
	if len(plan.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(plan.Scenes))
	}

	high := electronicFamily.scenes["high"]
	prev := -1
	for _, s := range plan.Scenes {
		idx := catalogueIndex(high, s)
		if idx < 0 {
			t.Fatalf("scene %q is not from the high-energy electronic catalogue", s.ImagePrompt)
		}
		if idx <= prev {
			t.Errorf("scenes are not in catalogue order (%d after %d)", idx, prev)
		}
		prev = idx

		if !strings.Contains(s.VideoPrompt, "135 BPM") {
			t.Errorf("video prompt should carry the tempo: %q", s.VideoPrompt)
		}
		if !strings.Contains(s.VideoPrompt, "intense motion") {
			t.Errorf("video prompt should carry the motion cue: %q", s.VideoPrompt)
		}
	}

	want := []string{electronicFamily.specialMoment}
	if diff := cmp.Diff(want, plan.SpecialMoments); diff != "" {
		t.Errorf("special moments mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanAmbientLowEnergy(t *testing.T) {
	plan, err := New(DefaultSceneCap).Plan(ambientLow())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if plan.Style != "serene" {
		t.Errorf("style = %q, want serene", plan.Style)
	}
	if len(plan.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(plan.Scenes))
	}
	for _, s := range plan.Scenes {
		if catalogueIndex(ambientFamily.catalogue("low"), s) < 0 {
			t.Errorf("scene %q is not an ambient scene", s.ImagePrompt)
		}
		if !strings.Contains(s.VideoPrompt, "72 BPM") || !strings.Contains(s.VideoPrompt, "gentle motion") {
			t.Errorf("unexpected video prompt: %q", s.VideoPrompt)
		}
	}
}

func TestElectronicLowEnergyUsesCalmCatalogue(t *testing.T) {
	f := electronicHigh()
	f.EnergyLevel = models.EnergyMedium

	plan, err := New(DefaultSceneCap).Plan(f)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	for _, s := range plan.Scenes {
		if catalogueIndex(electronicFamily.scenes[""], s) < 0 {
			t.Errorf("medium energy should draw from the calmer catalogue, got %q", s.ImagePrompt)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		genre models.Genre
		mood  models.Mood
		style string
	}{
		{models.GenreElectronic, models.MoodEnergetic, "cyberpunk"},
		{models.GenreElectronic, models.MoodCalm, "artistic"},
		{models.GenreRock, models.MoodEnergetic, "urban"},
		{models.GenreRock, models.MoodDynamic, "artistic"},
		{models.GenreAmbient, models.MoodCalm, "serene"},
		{models.GenreAmbient, models.MoodEnergetic, "artistic"},
		{models.GenrePop, models.MoodCalm, "contemporary"},
		{models.GenrePop, models.MoodEnergetic, "contemporary"},
		{models.GenreAlternative, models.MoodDynamic, "artistic"},
		{"", models.MoodEnergetic, "artistic"},
	}

	for _, tt := range tests {
		if got := classify(tt.genre, tt.mood).style; got != tt.style {
			t.Errorf("classify(%q, %q) = %q, want %q", tt.genre, tt.mood, got, tt.style)
		}
	}
}

func TestCataloguesHaveEnoughScenes(t *testing.T) {
	for _, fam := range []family{electronicFamily, rockFamily, ambientFamily, popFamily, alternativeFamily} {
		for level, scenes := range fam.scenes {
			if len(scenes) < 4 {
				t.Errorf("%s/%q has %d scenes, want at least 4", fam.style, level, len(scenes))
			}
			for _, s := range scenes {
				if strings.Count(s.videoPrompt, "%s") != 1 {
					t.Errorf("%s video prompt must take exactly one tempo: %q", fam.style, s.videoPrompt)
				}
			}
		}
		if fam.specialMoment == "" {
			t.Errorf("%s has no special moment", fam.style)
		}
	}
}

func TestSeed(t *testing.T) {
	f := electronicHigh()
	if got, want := Seed(f), int64(math.Floor(f.Tempo*f.Energy*f.SpectralCentroid)); got != want {
		t.Errorf("Seed = %d, want %d", got, want)
	}

	f.Energy = 0
	if got := Seed(f); got != fallbackSeed {
		t.Errorf("zero product should use the fallback seed, got %d", got)
	}

	f.Energy = 0.5
	f.SpectralCentroid = -300
	if got := Seed(f); got != fallbackSeed {
		t.Errorf("negative product should use the fallback seed, got %d", got)
	}
}

func TestZeroEnergyStillPlans(t *testing.T) {
	f := models.FallbackFeatures()
	f.Energy = 0

	plan, err := New(DefaultSceneCap).Plan(f)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(plan.Scenes) != 2 {
		t.Errorf("expected 2 scenes, got %d", len(plan.Scenes))
	}
}

func TestSelectIndexes(t *testing.T) {
	got := selectIndexes(42, 5, 2)
	if len(got) != 2 || got[0] >= got[1] {
		t.Fatalf("expected 2 ascending distinct indexes, got %v", got)
	}

	if got := selectIndexes(7, 3, 10); len(got) != 3 {
		t.Errorf("cap above catalogue size should select the whole catalogue, got %v", got)
	}

	seen := map[[2]int]bool{}
	for seed := int64(1); seed <= 200; seed++ {
		idx := selectIndexes(seed, 5, 2)
		seen[[2]int{idx[0], idx[1]}] = true
	}
	if len(seen) < 2 {
		t.Errorf("different seeds should vary the selection, saw %d distinct subsets", len(seen))
	}
}

func TestPlanRejectsInvalidFeatures(t *testing.T) {
	f := electronicHigh()
	f.Tempo = 0

	_, err := New(DefaultSceneCap).Plan(f)
	if !errors.Is(err, ErrPlanning) {
		t.Fatalf("expected ErrPlanning, got %v", err)
	}
	if !errors.Is(err, models.ErrInvalidFeatures) {
		t.Errorf("expected the validation cause to be preserved, got %v", err)
	}
}

func TestMotionIntensity(t *testing.T) {
	for tempo, want := range map[float64]string{60: "gentle", 89.9: "gentle", 90: "dynamic", 129: "dynamic", 130: "intense", 174: "intense"} {
		if got := MotionIntensity(tempo); got != want {
			t.Errorf("MotionIntensity(%v) = %q, want %q", tempo, got, want)
		}
	}
}
