// Package transcript submits evidence videos to a transcription API and polls
// the resulting jobs.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aldoetobex/section1983-backend/pkg/config"
)

var (
	ErrNotConfigured = errors.New("transcript: api not configured")
	ErrBadResponse   = errors.New("transcript: unexpected response")
)

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("transcript: http %d: %s", e.StatusCode, strings.TrimSpace(body))
}

// Provider job states, normalised.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is one provider-side transcription.
type Job struct {
	ID     string
	Status string
	Text   string
	Error  string
}

// Transcriber is what the evidence handlers depend on.
type Transcriber interface {
	Submit(ctx context.Context, videoURL string) (string, error)
	Fetch(ctx context.Context, jobID string) (*Job, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(cfg config.TranscriptConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient is intended for tests.
func NewWithHTTPClient(cfg config.TranscriptConfig, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: hc,
	}
}

func (c *Client) Configured() bool { return c != nil && c.baseURL != "" && c.apiKey != "" }

func (c *Client) do(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	if !c.Configured() {
		return gjson.Result{}, ErrNotConfigured
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return gjson.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return gjson.Result{}, &HTTPError{StatusCode: res.StatusCode, Body: string(raw)}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, ErrBadResponse
	}
	return gjson.ParseBytes(raw), nil
}

// Submit starts a transcription of videoURL and returns the provider job id.
func (c *Client) Submit(ctx context.Context, videoURL string) (string, error) {
	out, err := c.do(ctx, http.MethodPost, "/v1/transcripts", map[string]string{"video_url": videoURL})
	if err != nil {
		return "", err
	}
	id := firstString(out, "id", "job_id", "data.id")
	if id == "" {
		return "", fmt.Errorf("%w: no job id", ErrBadResponse)
	}
	return id, nil
}

// Fetch reads the current state of a job once.
func (c *Client) Fetch(ctx context.Context, jobID string) (*Job, error) {
	out, err := c.do(ctx, http.MethodGet, "/v1/transcripts/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:     jobID,
		Status: normalizeStatus(firstString(out, "status", "data.status")),
		Text:   strings.TrimSpace(firstString(out, "transcript", "text", "data.transcript", "data.text")),
		Error:  firstString(out, "error.message", "error", "data.error"),
	}
	if job.Status == StatusCompleted && job.Text == "" {
		// Segmented responses carry the text in pieces.
		var parts []string
		out.Get("segments.#.text").ForEach(func(_, v gjson.Result) bool {
			if s := strings.TrimSpace(v.String()); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		job.Text = strings.Join(parts, " ")
	}
	return job, nil
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "done", "succeeded", "success":
		return StatusCompleted
	case "failed", "error", "errored", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusProcessing
	}
}
