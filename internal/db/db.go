package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/bobarin/beatreel/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunStore records orchestration runs. DB and MemoryStore implement it.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]models.Run, int, error)
	MarkRunRunning(ctx context.Context, id uuid.UUID) error
	CompleteRun(ctx context.Context, id uuid.UUID, result *models.GenerationResult) error
	// FailRun records a failed or cancelled run together with any partial result.
	FailRun(ctx context.Context, id uuid.UUID, message string, partial *models.GenerationResult) error
}

// DB is the Postgres-backed run store.
type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id            UUID PRIMARY KEY,
		status        TEXT NOT NULL,
		features      JSONB NOT NULL,
		result        JSONB,
		error_message TEXT,
		started_at    TIMESTAMPTZ,
		finished_at   TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC);
`

// EnsureSchema creates the runs table when it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
