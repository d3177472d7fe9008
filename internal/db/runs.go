package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/beatreel/internal/models"
)

const runColumns = `
	id, status, features, result, error_message,
	started_at, finished_at, created_at, updated_at
`

func (db *DB) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}

	query := `
		INSERT INTO runs (id, status, features)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(ctx, query, run.ID, run.Status, run.Features).
		Scan(&run.CreatedAt, &run.UpdatedAt)
}

func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns a page of runs, newest first, and the total count.
func (db *DB) ListRuns(ctx context.Context, limit, offset int) ([]models.Run, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, total, nil
}

func (db *DB) MarkRunRunning(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE runs SET status = $1, started_at = $2, updated_at = $2 WHERE id = $3`
	return db.exec(ctx, query, models.RunStatusRunning, time.Now(), id)
}

func (db *DB) CompleteRun(ctx context.Context, id uuid.UUID, result *models.GenerationResult) error {
	query := `
		UPDATE runs
		SET status = $1, result = $2, finished_at = $3, updated_at = $3
		WHERE id = $4
	`
	return db.exec(ctx, query, models.RunStatusCompleted, result, time.Now(), id)
}

func (db *DB) FailRun(ctx context.Context, id uuid.UUID, message string, partial *models.GenerationResult) error {
	query := `
		UPDATE runs
		SET status = $1, error_message = $2, result = $3, finished_at = $4, updated_at = $4
		WHERE id = $5
	`
	return db.exec(ctx, query, models.RunStatusFailed, message, partial, time.Now(), id)
}

func (db *DB) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var result []byte

	err := row.Scan(
		&run.ID, &run.Status, &run.Features, &result, &run.ErrorMessage,
		&run.StartedAt, &run.FinishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		run.Result = &models.GenerationResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return run, nil
}
