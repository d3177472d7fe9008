package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
)

const (
	uploadTimeout = 60 * time.Second

	// Retry configuration
	maxAttempts    = 5
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	manifestFile = "manifest.json"
)

// Storage uploads run artifacts to a Supabase Storage bucket.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	retryDelay time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryDelay: baseRetryDelay,
	}
}

// Upload stores data at path, retrying network errors and retryable statuses
// with exponential backoff. Existing objects are overwritten.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath)
	logger := xlog.WithComponent("storage")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryDelay
	b.MaxInterval = maxRetryDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("upload cancelled: %w", ctx.Err()))
			}
			logger.Warn().Err(err).Int("attempt", attempt).Str("path", objectPath).Msg("upload failed")
			return struct{}{}, fmt.Errorf("failed to upload: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return struct{}{}, nil
		}

		statusErr := fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if !isRetryableStatus(resp.StatusCode) {
			return struct{}{}, backoff.Permanent(statusErr)
		}
		logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Str("path", objectPath).Msg("upload returned retryable status")
		return struct{}{}, statusErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxAttempts))

	if err != nil {
		return fmt.Errorf("upload of %s failed after %d attempts: %w", objectPath, attempt, err)
	}
	if attempt > 1 {
		logger.Info().Int("attempt", attempt).Str("path", objectPath).Msg("upload succeeded after retry")
	}
	return nil
}

// Manifest is the JSON document written for every finished run.
type Manifest struct {
	RunID    uuid.UUID                `json:"run_id"`
	Status   models.RunStatus         `json:"status"`
	Error    string                   `json:"error,omitempty"`
	Result   *models.GenerationResult `json:"result,omitempty"`
	Uploaded time.Time                `json:"uploaded_at"`
}

// UploadManifest writes the run manifest and returns its public URL.
func (s *Storage) UploadManifest(ctx context.Context, m Manifest) (string, error) {
	if m.Uploaded.IsZero() {
		m.Uploaded = time.Now().UTC()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	objectPath := s.GenerateStoragePath(m.RunID, manifestFile)
	if err := s.Upload(ctx, objectPath, data, "application/json"); err != nil {
		return "", err
	}
	return s.GetPublicURL(objectPath), nil
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// GenerateStoragePath returns runs/{runID}/{filename}.
func (s *Storage) GenerateStoragePath(runID uuid.UUID, filename string) string {
	return path.Join("runs", runID.String(), filename)
}

// Configured reports whether uploads can be attempted.
func (s *Storage) Configured() bool {
	return s != nil && s.url != "" && s.serviceKey != ""
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusInternalServerError || // 500
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
