package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Higgsfield Generation Service
// Deferred request pattern: POST a job set → poll the job set by id → read
// results.raw.url from the first job once it completes.
// ---------------------------------------------------------------------------

const (
	DefaultHiggsfieldBaseURL = "https://platform.higgsfield.ai"

	higgsfieldImageEndpoint        = "v1/text2image/nano-banana"
	higgsfieldImageToVideoEndpoint = "generate/kling-2-5"
	higgsfieldTextToVideoEndpoint  = "generate/minimax-t2v"

	higgsfieldVideoModel          = "kling-v2-5-turbo"
	higgsfieldDefaultAspect       = "16:9"
	higgsfieldImageToVideoSeconds = 5
	higgsfieldTextToVideoSeconds  = 6
	higgsfieldTextToVideoRes      = "768"

	// One request per second keeps us clear of the service's bot protection.
	higgsfieldDefaultRPS = 1.0
)

// HiggsfieldStatusRoutes lists the job-set status routes in priority order.
var HiggsfieldStatusRoutes = []string{
	"v1/job-sets/{id}",
	"v1/jobs/{id}",
	"requests/{id}/status",
}

type HiggsfieldClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHiggsfieldClient creates a client for the Higgsfield platform API.
// baseURL defaults to DefaultHiggsfieldBaseURL; requestsPerSecond <= 0 uses one request per second.
func NewHiggsfieldClient(apiKey, apiSecret, baseURL string, requestsPerSecond float64) *HiggsfieldClient {
	if baseURL == "" {
		baseURL = DefaultHiggsfieldBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = higgsfieldDefaultRPS
	}
	return &HiggsfieldClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

type higgsfieldSubmitRequest struct {
	Params interface{} `json:"params"`
}

type higgsfieldImageParams struct {
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio"`
	InputImages []string `json:"input_images"`
}

type higgsfieldImageToVideoParams struct {
	Model         string             `json:"model"`
	Duration      int                `json:"duration"`
	EnhancePrompt bool               `json:"enhance_prompt"`
	InputImage    higgsfieldImageRef `json:"input_image"`
	Prompt        string             `json:"prompt"`
}

type higgsfieldImageRef struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// The misspelled key is what the minimax endpoint accepts.
type higgsfieldTextToVideoParams struct {
	Duration               int    `json:"duration"`
	Resolution             string `json:"resolution"`
	EnablePromptOptimizier bool   `json:"enable_prompt_optimizier"`
	Prompt                 string `json:"prompt"`
}

type higgsfieldSubmitResponse struct {
	ID string `json:"id"`
}

// higgsfieldJobSet is the response of GET v1/job-sets/{id}.
type higgsfieldJobSet struct {
	ID   string      `json:"id"`
	Jobs []JobStatus `json:"jobs"`
}

// Submit starts a generation job and returns the job-set id.
func (c *HiggsfieldClient) Submit(ctx context.Context, kind models.JobKind, req JobRequest) (string, error) {
	endpoint, params, err := buildHiggsfieldParams(kind, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmitRejected, err)
	}

	body, err := json.Marshal(higgsfieldSubmitRequest{Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	logger := xlog.WithComponent("higgsfield")
	logger.Info().Str("kind", string(kind)).Str("endpoint", endpoint).Int("prompt_len", len(req.Prompt)).Msg("submitting job")

	status, respBody, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		err := fmt.Errorf("higgsfield returned status %d: %s", status, truncate(string(respBody), 300))
		if !retryableStatus(status) {
			return "", fmt.Errorf("%w: %w", ErrSubmitRejected, err)
		}
		return "", err
	}

	var resp higgsfieldSubmitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w (body: %s)", err, truncate(string(respBody), 300))
	}
	if resp.ID == "" {
		return "", fmt.Errorf("no id in submit response: %s", truncate(string(respBody), 300))
	}

	logger.Info().Str("kind", string(kind)).Str("job_id", resp.ID).Msg("job submitted")
	return resp.ID, nil
}

// FetchStatus returns the status of the first job in the job set.
func (c *HiggsfieldClient) FetchStatus(ctx context.Context, route, jobID string) (*JobStatus, error) {
	path := strings.ReplaceAll(route, "{id}", jobID)

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound || strings.Contains(strings.ToLower(string(body)), "unidentified route") {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return nil, fmt.Errorf("higgsfield returned status %d: %s", status, truncate(string(body), 300))
	}

	var set higgsfieldJobSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse job set: %w (body: %s)", err, truncate(string(body), 300))
	}
	if len(set.Jobs) == 0 {
		return nil, fmt.Errorf("job set %s has no jobs yet", jobID)
	}

	return &set.Jobs[0], nil
}

func (c *HiggsfieldClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("hf-api-key", c.apiKey)
	req.Header.Set("hf-secret", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func buildHiggsfieldParams(kind models.JobKind, req JobRequest) (string, interface{}, error) {
	if req.Prompt == "" {
		return "", nil, fmt.Errorf("prompt is required for %s jobs", kind)
	}

	aspect := req.AspectRatio
	if aspect == "" {
		aspect = higgsfieldDefaultAspect
	}

	switch kind {
	case models.JobKindImage:
		return higgsfieldImageEndpoint, higgsfieldImageParams{
			Prompt:      req.Prompt,
			AspectRatio: aspect,
			InputImages: []string{},
		}, nil

	case models.JobKindImageToVideo:
		if req.ImageURL == "" {
			return "", nil, fmt.Errorf("image URL is required for %s jobs", kind)
		}
		return higgsfieldImageToVideoEndpoint, higgsfieldImageToVideoParams{
			Model:         higgsfieldVideoModel,
			Duration:      durationOr(req.DurationSec, higgsfieldImageToVideoSeconds),
			EnhancePrompt: true,
			InputImage:    higgsfieldImageRef{Type: "image_url", ImageURL: req.ImageURL},
			Prompt:        req.Prompt,
		}, nil

	case models.JobKindTextToVideo:
		return higgsfieldTextToVideoEndpoint, higgsfieldTextToVideoParams{
			Duration:               durationOr(req.DurationSec, higgsfieldTextToVideoSeconds),
			Resolution:             higgsfieldTextToVideoRes,
			EnablePromptOptimizier: true,
			Prompt:                 req.Prompt,
		}, nil
	}

	return "", nil, fmt.Errorf("unsupported job kind %q", kind)
}

func durationOr(sec, def int) int {
	if sec > 0 {
		return sec
	}
	return def
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
