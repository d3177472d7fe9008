package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/beatreel/internal/models"
)

// testStores returns the in-memory store and, when TEST_DATABASE_URL is set,
// a Postgres store with a fresh schema.
func testStores(t *testing.T) map[string]RunStore {
	t.Helper()

	mem := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	mem.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	stores := map[string]RunStore{"memory": mem}

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := New(url)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		ctx := context.Background()
		if err := pg.EnsureSchema(ctx); err != nil {
			t.Fatalf("schema: %v", err)
		}
		if _, err := pg.ExecContext(ctx, `TRUNCATE runs`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		stores["postgres"] = pg
	}
	return stores
}

func TestRunLifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			run := &models.Run{Features: models.FallbackFeatures()}
			if err := store.CreateRun(ctx, run); err != nil {
				t.Fatalf("create: %v", err)
			}
			if run.ID == uuid.Nil || run.Status != models.RunStatusQueued || run.CreatedAt.IsZero() {
				t.Fatalf("unexpected created run: %+v", run)
			}

			if err := store.MarkRunRunning(ctx, run.ID); err != nil {
				t.Fatalf("mark running: %v", err)
			}
			got, err := store.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != models.RunStatusRunning || got.StartedAt == nil {
				t.Errorf("expected running with start time, got %+v", got)
			}

			result := &models.GenerationResult{
				Analysis:        run.Features,
				Clips:           []models.Clip{{URL: "https://cdn/a.mp4", Description: "d", Kind: models.ClipKindScene}},
				BudgetUsed:      0.34,
				BudgetRemaining: 99.66,
			}
			if err := store.CompleteRun(ctx, run.ID, result); err != nil {
				t.Fatalf("complete: %v", err)
			}

			got, err = store.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != models.RunStatusCompleted || got.FinishedAt == nil {
				t.Errorf("unexpected final run: %+v", got)
			}
			if got.Result == nil || len(got.Result.Clips) != 1 || got.Result.BudgetUsed != 0.34 {
				t.Errorf("result not stored: %+v", got.Result)
			}
			if got.Features.Genre != models.GenreAlternative {
				t.Errorf("features not stored: %+v", got.Features)
			}
		})
	}
}

func TestFailRunKeepsPartialResult(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := &models.Run{Features: models.FallbackFeatures()}
			if err := store.CreateRun(ctx, run); err != nil {
				t.Fatalf("create: %v", err)
			}

			partial := &models.GenerationResult{Analysis: run.Features, Clips: []models.Clip{}, BudgetUsed: 0.09}
			if err := store.FailRun(ctx, run.ID, "cancelled", partial); err != nil {
				t.Fatalf("fail: %v", err)
			}

			got, err := store.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != models.RunStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "cancelled" {
				t.Errorf("unexpected failed run: %+v", got)
			}
			if got.Result == nil || got.Result.BudgetUsed != 0.09 {
				t.Errorf("partial result not stored: %+v", got.Result)
			}
		})
	}
}

func TestRunNotFound(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := uuid.New()

			if _, err := store.GetRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("get: expected ErrRunNotFound, got %v", err)
			}
			if err := store.MarkRunRunning(ctx, id); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("mark: expected ErrRunNotFound, got %v", err)
			}
			if err := store.CompleteRun(ctx, id, nil); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("complete: expected ErrRunNotFound, got %v", err)
			}
		})
	}
}

func TestListRunsPaginates(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var ids []uuid.UUID
			for i := 0; i < 5; i++ {
				run := &models.Run{Features: models.FallbackFeatures()}
				if err := store.CreateRun(ctx, run); err != nil {
					t.Fatalf("create: %v", err)
				}
				ids = append(ids, run.ID)
				if name == "postgres" {
					time.Sleep(5 * time.Millisecond)
				}
			}

			page, total, err := store.ListRuns(ctx, 2, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if total != 5 || len(page) != 2 {
				t.Fatalf("total=%d len=%d", total, len(page))
			}
			if page[0].ID != ids[4] || page[1].ID != ids[3] {
				t.Errorf("expected newest first")
			}

			page, _, err = store.ListRuns(ctx, 2, 4)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page) != 1 || page[0].ID != ids[0] {
				t.Errorf("unexpected last page: %+v", page)
			}

			page, _, err = store.ListRuns(ctx, 2, 10)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if page == nil || len(page) != 0 {
				t.Errorf("expected an empty page, got %+v", page)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := &models.Run{Features: models.FallbackFeatures()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := store.GetRun(ctx, run.ID)
	got.Status = models.RunStatusCompleted

	again, _ := store.GetRun(ctx, run.ID)
	if again.Status != models.RunStatusQueued {
		t.Error("mutating a returned run must not change the store")
	}
}
