package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/moyeo-ai/moyeo/internal/agent/graph"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// AgentClient talks to the orchestration service: it starts voice runs and
// consumes their SSE streams, and feeds the meeting's context engine.
type AgentClient struct {
	base  string
	token string

	// rest has a timeout; stream must not, an answer can take a while.
	rest   *http.Client
	stream *http.Client
}

// NewAgentClient creates a client for the orchestration service at base.
func NewAgentClient(base, token string) *AgentClient {
	return &AgentClient{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		rest:   &http.Client{Timeout: 10 * time.Second},
		stream: &http.Client{},
	}
}

// RunRequest starts one agent run.
type RunRequest struct {
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Mode      string `json:"mode"`
	Channel   string `json:"channel"`
	Query     string `json:"query"`
}

// StartRun begins a run and returns its event stream. The channel is closed
// when the stream ends; cancel ctx to abandon it early.
func (c *AgentClient) StartRun(ctx context.Context, req RunRequest) (<-chan graph.Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal run request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/agent/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("worker: build run request: %w", err)
	}
	c.decorate(httpReq)

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker: %w: start run: %v", meet.ErrExternal, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("worker: %w: start run: status %d", meet.ErrExternal, resp.StatusCode)
	}

	events := make(chan graph.Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev graph.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				slog.Warn("malformed run event", "error", err)
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// PostUtterance feeds one finalized utterance into the context engine.
func (c *AgentClient) PostUtterance(ctx context.Context, meetingID string, u meet.Utterance) error {
	payload := map[string]any{
		"id":           u.ID,
		"speaker_id":   u.SpeakerID,
		"speaker_name": u.SpeakerName,
		"text":         u.Text,
		"start_ms":     u.StartMS,
		"end_ms":       u.EndMS,
		"confidence":   u.Confidence,
	}
	return c.post(ctx, "/agent/meetings/"+meetingID+"/utterances", payload, http.StatusAccepted)
}

// Prewarm restores the meeting's context engine ahead of the first
// utterance.
func (c *AgentClient) Prewarm(ctx context.Context, meetingID string) error {
	return c.post(ctx, "/agent/meetings/"+meetingID+"/prewarm", nil, http.StatusNoContent)
}

// DropContext discards the meeting's context engine after the meeting ends.
func (c *AgentClient) DropContext(ctx context.Context, meetingID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/agent/meetings/"+meetingID+"/context", nil)
	if err != nil {
		return fmt.Errorf("worker: build drop request: %w", err)
	}
	c.decorate(req)
	resp, err := c.rest.Do(req)
	if err != nil {
		return fmt.Errorf("worker: %w: drop context: %v", meet.ErrExternal, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("worker: %w: drop context: status %d", meet.ErrExternal, resp.StatusCode)
	}
	return nil
}

func (c *AgentClient) post(ctx context.Context, path string, payload any, wantStatus int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("worker: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return fmt.Errorf("worker: build request: %w", err)
	}
	c.decorate(req)
	resp, err := c.rest.Do(req)
	if err != nil {
		return fmt.Errorf("worker: %w: %s: %v", meet.ErrExternal, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("worker: %w: %s: status %d", meet.ErrExternal, path, resp.StatusCode)
	}
	return nil
}

func (c *AgentClient) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
