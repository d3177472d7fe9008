package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/beatreel/internal/models"
)

// MemoryStore keeps runs in process memory. It is used when no database is
// configured; history is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*models.Run
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*models.Run), now: time.Now}
}

func (m *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	now := m.now()
	run.CreatedAt, run.UpdatedAt = now, now

	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := *run
	return &out, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit, offset int) ([]models.Run, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []models.Run{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *MemoryStore) MarkRunRunning(ctx context.Context, id uuid.UUID) error {
	return m.update(id, func(r *models.Run, now time.Time) {
		r.Status = models.RunStatusRunning
		r.StartedAt = &now
	})
}

func (m *MemoryStore) CompleteRun(ctx context.Context, id uuid.UUID, result *models.GenerationResult) error {
	return m.update(id, func(r *models.Run, now time.Time) {
		r.Status = models.RunStatusCompleted
		r.Result = result
		r.FinishedAt = &now
	})
}

func (m *MemoryStore) FailRun(ctx context.Context, id uuid.UUID, message string, partial *models.GenerationResult) error {
	return m.update(id, func(r *models.Run, now time.Time) {
		r.Status = models.RunStatusFailed
		r.ErrorMessage = &message
		r.Result = partial
		r.FinishedAt = &now
	})
}

func (m *MemoryStore) update(id uuid.UUID, apply func(*models.Run, time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	now := m.now()
	apply(run, now)
	run.UpdatedAt = now
	return nil
}
