package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	xlog "github.com/bobarin/beatreel/internal/log"
	"github.com/bobarin/beatreel/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Google / OpenAI Generation Transport
// Stills come from the OpenAI image API, which answers synchronously; the
// job is recorded as completed at submission. Clips come from Veo through
// the Gen AI SDK: the long-running operation name is the job ID and each
// status query refreshes the operation.
// ---------------------------------------------------------------------------

const (
	DefaultVeoModel = "veo-3.1-generate-preview"

	googleImageModel  = openai.CreateImageModelDallE3
	googleImageSize   = openai.CreateImageSize1792x1024
	googleVideoAspect = "16:9"
)

// GoogleStatusRoutes is the single status route understood by GoogleTransport.
var GoogleStatusRoutes = []string{"operations/{id}"}

type GoogleTransport struct {
	images     *openai.Client
	videos     *genai.Client
	veoModel   string
	httpClient *http.Client
	logger     zerolog.Logger

	// imageURLs holds finished stills until their single status fetch.
	mu        sync.Mutex
	imageURLs map[string]string
}

// NewGoogleTransport creates the transport. openAIKey powers still images,
// geminiKey powers Veo; veoModel "" selects DefaultVeoModel.
func NewGoogleTransport(ctx context.Context, openAIKey, geminiKey, veoModel string) (*GoogleTransport, error) {
	videos, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGoogleTransport(openai.NewClient(openAIKey), videos, veoModel), nil
}

func newGoogleTransport(images *openai.Client, videos *genai.Client, veoModel string) *GoogleTransport {
	if veoModel == "" {
		veoModel = DefaultVeoModel
	}
	return &GoogleTransport{
		images:     images,
		videos:     videos,
		veoModel:   veoModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     xlog.WithComponent("google"),
		imageURLs:  make(map[string]string),
	}
}

func (t *GoogleTransport) Submit(ctx context.Context, kind models.JobKind, req JobRequest) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("%w: prompt is required for %s jobs", ErrSubmitRejected, kind)
	}

	switch kind {
	case models.JobKindImage:
		return t.submitImage(ctx, req)
	case models.JobKindImageToVideo:
		if req.ImageURL == "" {
			return "", fmt.Errorf("%w: image URL is required for %s jobs", ErrSubmitRejected, kind)
		}
		frame, err := t.fetchFrame(ctx, req.ImageURL)
		if err != nil {
			return "", err
		}
		return t.submitVideo(ctx, kind, req, frame)
	case models.JobKindTextToVideo:
		return t.submitVideo(ctx, kind, req, nil)
	}
	return "", fmt.Errorf("%w: unsupported job kind %q", ErrSubmitRejected, kind)
}

func (t *GoogleTransport) submitImage(ctx context.Context, req JobRequest) (string, error) {
	resp, err := t.images.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          googleImageModel,
		N:              1,
		Size:           googleImageSize,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) {
			return "", fmt.Errorf("%w: image generation failed: %w", ErrSubmitRejected, err)
		}
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("image generation returned no URL")
	}

	id := uuid.NewString()
	t.mu.Lock()
	t.imageURLs[id] = resp.Data[0].URL
	t.mu.Unlock()

	t.logger.Info().Str("job_id", id).Msg("image generated")
	return id, nil
}

func (t *GoogleTransport) submitVideo(ctx context.Context, kind models.JobKind, req JobRequest, frame *genai.Image) (string, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = googleVideoAspect
	}

	op, err := t.videos.Models.GenerateVideos(ctx, t.veoModel, req.Prompt, frame, &genai.GenerateVideosConfig{
		AspectRatio:    aspect,
		NumberOfVideos: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start video generation: %w", err)
	}
	if op.Name == "" {
		return "", fmt.Errorf("video generation returned no operation name")
	}

	t.logger.Info().Str("kind", string(kind)).Str("job_id", op.Name).Str("model", t.veoModel).Msg("video operation started")
	return op.Name, nil
}

func (t *GoogleTransport) FetchStatus(ctx context.Context, route, jobID string) (*JobStatus, error) {
	if route != GoogleStatusRoutes[0] {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
	}

	t.mu.Lock()
	url, isImage := t.imageURLs[jobID]
	delete(t.imageURLs, jobID)
	t.mu.Unlock()
	if isImage {
		return completedStatus(url), nil
	}

	op, err := t.videos.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: jobID}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh operation %s: %w", jobID, err)
	}
	return videoOperationStatus(op), nil
}

// videoOperationStatus maps a Veo operation onto the job status shape.
func videoOperationStatus(op *genai.GenerateVideosOperation) *JobStatus {
	if op == nil || !op.Done {
		return &JobStatus{Status: "in_progress"}
	}
	if len(op.Error) > 0 {
		errJSON, _ := json.Marshal(op.Error)
		return &JobStatus{Status: "failed", Error: string(errJSON)}
	}
	if op.Response == nil {
		return &JobStatus{Status: "failed", Error: "operation finished without a response"}
	}
	if op.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(op.Response.RAIMediaFilteredReasons, ", ")
		}
		return &JobStatus{Status: "failed", Error: "blocked by safety filters: " + reasons}
	}
	if len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		// Completed without a URL; the poller reports it as malformed.
		return &JobStatus{Status: "completed"}
	}
	return completedStatus(op.Response.GeneratedVideos[0].Video.URI)
}

func completedStatus(url string) *JobStatus {
	return &JobStatus{Status: "completed", Results: &JobResults{Raw: &RawResult{URL: url}}}
}

// fetchFrame downloads the still that seeds an image-to-video job.
func (t *GoogleTransport) fetchFrame(ctx context.Context, imageURL string) (*genai.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download source image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source image download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read source image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("source image is empty")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return &genai.Image{ImageBytes: data, MIMEType: mimeType}, nil
}
