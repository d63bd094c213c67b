package workerman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// JobManager submits workers to an HTTP jobs API, the shape exposed by
// serverless container platforms:
//
//	POST   {base}/jobs            -> 201 {"id": "...", "status": "pending"}
//	GET    {base}/jobs/{id}       -> 200 {"id": "...", "status": "..."}
//	DELETE {base}/jobs/{id}       -> 204
type JobManager struct {
	baseURL string
	token   string
	image   string
	client  *http.Client

	mu sync.Mutex
	// jobs maps meetingID -> job ID.
	jobs map[string]string
}

var _ Manager = (*JobManager)(nil)

// JobOption configures a JobManager.
type JobOption func(*JobManager)

// WithJobHTTPClient overrides the HTTP client, mainly for tests.
func WithJobHTTPClient(c *http.Client) JobOption {
	return func(m *JobManager) { m.client = c }
}

// WithJobImage sets the worker image submitted with each job.
func WithJobImage(image string) JobOption {
	return func(m *JobManager) { m.image = image }
}

// NewJobManager creates a manager against the jobs API at baseURL.
func NewJobManager(baseURL, token string, opts ...JobOption) (*JobManager, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("workerman: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("workerman: invalid baseURL: %w", err)
	}
	m := &JobManager{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		jobs:    make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

type jobRequest struct {
	Image string            `json:"image,omitempty"`
	Name  string            `json:"name"`
	Env   map[string]string `json:"env"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Start implements Manager.
func (m *JobManager) Start(ctx context.Context, params StartParams) (*meet.WorkerInfo, error) {
	if params.MeetingID == "" {
		return nil, fmt.Errorf("workerman: %w: meetingID must not be empty", meet.ErrInvalidInput)
	}

	m.mu.Lock()
	jobID, exists := m.jobs[params.MeetingID]
	m.mu.Unlock()
	if exists {
		info, err := m.Status(ctx, params.MeetingID)
		if err == nil && (info.Status == meet.WorkerRunning || info.Status == meet.WorkerPending) {
			slog.Info("worker job already active, reusing", "meetingID", params.MeetingID, "job", jobID)
			return info, nil
		}
	}

	body, err := json.Marshal(jobRequest{
		Image: m.image,
		Name:  containerName(params.MeetingID),
		Env:   envFor(params),
	})
	if err != nil {
		return nil, fmt.Errorf("workerman: marshal job request: %w", err)
	}

	var resp jobResponse
	if err := m.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.jobs[params.MeetingID] = resp.ID
	m.mu.Unlock()

	slog.Info("worker job submitted", "meetingID", params.MeetingID, "job", resp.ID)
	return &meet.WorkerInfo{
		MeetingID: params.MeetingID,
		WorkerID:  resp.ID,
		Status:    jobStatus(resp.Status),
		StartedAt: time.Now(),
	}, nil
}

// Stop implements Manager.
func (m *JobManager) Stop(ctx context.Context, meetingID string) error {
	m.mu.Lock()
	jobID, ok := m.jobs[meetingID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("workerman: %w: no worker for meeting %q", meet.ErrNotFound, meetingID)
	}

	if err := m.do(ctx, http.MethodDelete, "/jobs/"+jobID, nil, nil); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.jobs, meetingID)
	m.mu.Unlock()

	slog.Info("worker job stopped", "meetingID", meetingID, "job", jobID)
	return nil
}

// Status implements Manager.
func (m *JobManager) Status(ctx context.Context, meetingID string) (*meet.WorkerInfo, error) {
	m.mu.Lock()
	jobID, ok := m.jobs[meetingID]
	m.mu.Unlock()
	if !ok {
		return &meet.WorkerInfo{MeetingID: meetingID, Status: meet.WorkerNotFound}, nil
	}

	var resp jobResponse
	if err := m.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &meet.WorkerInfo{
		MeetingID: meetingID,
		WorkerID:  jobID,
		Status:    jobStatus(resp.Status),
	}, nil
}

// List implements Manager over the jobs this manager submitted.
func (m *JobManager) List(ctx context.Context, meetingID string) ([]meet.WorkerInfo, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		if meetingID == "" || id == meetingID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]meet.WorkerInfo, 0, len(ids))
	for _, id := range ids {
		info, err := m.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func jobStatus(s string) meet.WorkerStatus {
	switch s {
	case "pending", "queued", "scheduled":
		return meet.WorkerPending
	case "running", "active":
		return meet.WorkerRunning
	case "succeeded", "stopped", "completed":
		return meet.WorkerStopped
	case "failed", "error":
		return meet.WorkerFailed
	default:
		return meet.WorkerPending
	}
}

func (m *JobManager) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("workerman: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("workerman: %w: jobs API: %v", meet.ErrExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("workerman: %w: jobs API returned 404", meet.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("workerman: %w: jobs API status %d: %s", meet.ErrExternal, resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("workerman: decode jobs API response: %w", err)
	}
	return nil
}
