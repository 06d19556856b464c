// Package client talks to a running ladder server over its JSON API
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuivienor/hls-ladder/internal/httpapi"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/service"
)

// APIError is a non-2xx reply from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the domain error it came from
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrInvalidTransition
	}
	return nil
}

// Client is an admin API client
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for the server at baseURL, e.g. "http://127.0.0.1:8080"
func New(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListJobs returns jobs, optionally filtered by status
func (c *Client) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var jobs []model.Job
	_, err := c.do(ctx, http.MethodGet, "/api/jobs", q, &jobs)
	return jobs, err
}

// Job returns a job with its tasks and live progress
func (c *Client) Job(ctx context.Context, id string) (*service.JobView, error) {
	var view service.JobView
	if _, err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Submit starts or queues a job
func (c *Client) Submit(ctx context.Context, id string) (*service.SubmitResult, error) {
	var res service.SubmitResult
	if _, err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/submit", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Cancel removes a queued job from the queue
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
	return err
}

// Delete removes a job and its output
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil)
	return err
}

// Queue returns the waiting jobs in order
func (c *Client) Queue(ctx context.Context) ([]service.QueueItem, error) {
	var items []service.QueueItem
	_, err := c.do(ctx, http.MethodGet, "/api/queue", nil, &items)
	return items, err
}

// Stats returns job counts
func (c *Client) Stats(ctx context.Context) (*service.Stats, error) {
	var stats service.Stats
	if _, err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Scan asks the server to scan the input root
func (c *Client) Scan(ctx context.Context) (*httpapi.ScanSummary, error) {
	var summary httpapi.ScanSummary
	if _, err := c.do(ctx, http.MethodPost, "/api/scan", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ResetStuck asks the server to reset jobs that are not executing
func (c *Client) ResetStuck(ctx context.Context) (*service.ResetResult, error) {
	var res service.ResetResult
	if _, err := c.do(ctx, http.MethodPost, "/api/reset-stuck", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Events returns notifications newer than since
func (c *Client) Events(ctx context.Context, since int64) ([]notify.Event, error) {
	q := url.Values{"since": {strconv.FormatInt(since, 10)}}
	var events []notify.Event
	_, err := c.do(ctx, http.MethodGet, "/api/events", q, &events)
	return events, err
}

// do sends one request and decodes the envelope's data into out. It returns
// the envelope message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) (string, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var envelope httpapi.Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode >= 300 || !envelope.Success {
		return "", &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return "", fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return envelope.Message, nil
}
