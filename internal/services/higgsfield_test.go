package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobarin/beatreel/internal/models"
)

func newTestHiggsfield(t *testing.T, handler http.HandlerFunc) *HiggsfieldClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHiggsfieldClient("key-123", "secret-456", srv.URL, 1000)
}

func TestHiggsfieldSubmitImage(t *testing.T) {
	var gotPath string
	var gotBody map[string]map[string]interface{}

	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("hf-api-key") != "key-123" || r.Header.Get("hf-secret") != "secret-456" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"js-1"}`))
	})

	id, err := c.Submit(context.Background(), models.JobKindImage, JobRequest{Prompt: "neon city"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if id != "js-1" {
		t.Errorf("id = %q, want js-1", id)
	}
	if gotPath != "/v1/text2image/nano-banana" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["params"]["prompt"] != "neon city" || gotBody["params"]["aspect_ratio"] != "16:9" {
		t.Errorf("unexpected params: %v", gotBody["params"])
	}
}

func TestHiggsfieldSubmitImageToVideo(t *testing.T) {
	var params map[string]interface{}
	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate/kling-2-5" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Params map[string]interface{} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		params = body.Params
		w.Write([]byte(`{"id":"js-2"}`))
	})

	_, err := c.Submit(context.Background(), models.JobKindImageToVideo, JobRequest{Prompt: "lights pulse", ImageURL: "https://img/1.png"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if params["model"] != "kling-v2-5-turbo" || params["duration"].(float64) != 5 {
		t.Errorf("unexpected params: %v", params)
	}
	img, _ := params["input_image"].(map[string]interface{})
	if img["image_url"] != "https://img/1.png" || img["type"] != "image_url" {
		t.Errorf("unexpected input_image: %v", params["input_image"])
	}
}

func TestHiggsfieldSubmitValidation(t *testing.T) {
	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	})

	if _, err := c.Submit(context.Background(), models.JobKindImageToVideo, JobRequest{Prompt: "x"}); !errors.Is(err, ErrSubmitRejected) {
		t.Errorf("image-to-video without an image URL: got %v, want ErrSubmitRejected", err)
	}
	if _, err := c.Submit(context.Background(), models.JobKindTextToVideo, JobRequest{}); !errors.Is(err, ErrSubmitRejected) {
		t.Errorf("empty prompt: got %v, want ErrSubmitRejected", err)
	}
	if _, err := c.Submit(context.Background(), "upscale", JobRequest{Prompt: "x"}); !errors.Is(err, ErrSubmitRejected) {
		t.Errorf("unknown kind: got %v, want ErrSubmitRejected", err)
	}
}

func TestHiggsfieldSubmitServerError(t *testing.T) {
	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.Submit(context.Background(), models.JobKindTextToVideo, JobRequest{Prompt: "drop"})
	if err == nil {
		t.Fatal("expected error on 502")
	}
	if errors.Is(err, ErrSubmitRejected) {
		t.Errorf("a 502 is worth retrying, got %v", err)
	}
}

func TestHiggsfieldSubmitClientErrorIsRejected(t *testing.T) {
	tests := []struct {
		status   int
		rejected bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.Submit(context.Background(), models.JobKindImage, JobRequest{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrSubmitRejected); got != tt.rejected {
				t.Errorf("rejected = %v, want %v (%v)", got, tt.rejected, err)
			}
		})
	}
}

func TestHiggsfieldFetchStatusCompleted(t *testing.T) {
	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/job-sets/js-9" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"js-9","jobs":[{"status":"completed","results":{"raw":{"url":"https://cdn/clip.mp4"}}}]}`))
	})

	st, err := c.FetchStatus(context.Background(), HiggsfieldStatusRoutes[0], "js-9")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if st.Status != "completed" || st.URL() != "https://cdn/clip.mp4" {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestHiggsfieldFetchStatusRouteNotFound(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"detail":"Not Found"}`},
		{"unidentified route", http.StatusBadRequest, `{"error":"Unidentified route"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.FetchStatus(context.Background(), "v1/jobs/{id}", "js-1")
			if !errors.Is(err, ErrRouteNotFound) {
				t.Errorf("expected ErrRouteNotFound, got %v", err)
			}
		})
	}
}

func TestHiggsfieldFetchStatusNoJobs(t *testing.T) {
	c := newTestHiggsfield(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"js-1","jobs":[]}`))
	})

	_, err := c.FetchStatus(context.Background(), HiggsfieldStatusRoutes[0], "js-1")
	if err == nil || errors.Is(err, ErrRouteNotFound) {
		t.Errorf("expected a plain transient error, got %v", err)
	}
}

func TestJobStatusURL(t *testing.T) {
	var nilStatus *JobStatus
	if nilStatus.URL() != "" {
		t.Error("nil status should have no URL")
	}
	if (&JobStatus{Status: "completed", Results: &JobResults{}}).URL() != "" {
		t.Error("missing raw should have no URL")
	}
}
