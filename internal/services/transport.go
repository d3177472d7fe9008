package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/bobarin/beatreel/internal/models"
)

// ---------------------------------------------------------------------------
// Transport: the asynchronous generation service as seen by the poller.
// Higgsfield is the default provider; GoogleTransport is the alternate.
// ---------------------------------------------------------------------------

// ErrRouteNotFound means the service has no route for a status query
// (HTTP 404 or an "unidentified route" body). Callers fall back to other routes.
var ErrRouteNotFound = errors.New("no matching status route")

// ErrSubmitRejected marks a submit the service will refuse again if retried,
// such as invalid input or a non-retryable client error.
var ErrSubmitRejected = errors.New("submit rejected")

// retryableStatus reports whether a failed HTTP submit may succeed later.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

// JobRequest carries the inputs of one generation job.
type JobRequest struct {
	Prompt      string
	ImageURL    string // source frame, image-to-video only
	DurationSec int    // 0 = provider default
	AspectRatio string // "" = provider default
}

// JobStatus is a status report for a submitted job.
//
// Shape follows the service's job object:
//
//	{"status":"completed","results":{"raw":{"url":"..."}}}
//	{"status":"failed","error":"..."}
type JobStatus struct {
	Status  string      `json:"status"`
	Results *JobResults `json:"results,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type JobResults struct {
	Raw *RawResult `json:"raw,omitempty"`
}

type RawResult struct {
	URL string `json:"url"`
}

// URL returns results.raw.url, or "" when the payload has none.
func (s *JobStatus) URL() string {
	if s == nil || s.Results == nil || s.Results.Raw == nil {
		return ""
	}
	return s.Results.Raw.URL
}

// Transport submits jobs and reports their status.
type Transport interface {
	// Submit starts a job and returns the service's job ID.
	Submit(ctx context.Context, kind models.JobKind, req JobRequest) (string, error)

	// FetchStatus queries the job through route, a path template where "{id}"
	// stands for the job ID. It returns ErrRouteNotFound when the route does not exist.
	FetchStatus(ctx context.Context, route, jobID string) (*JobStatus, error)
}
