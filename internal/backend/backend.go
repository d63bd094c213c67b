// Package backend is the client for the product backend REST API: meeting
// records, transcript segments, chat history, and recording uploads. The
// meeting core never touches the relational store directly; everything goes
// through this surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// MaxUploadBytes caps recording uploads at 500 MiB.
const MaxUploadBytes = 500 << 20

// TranscriptSegment is the transcript upload payload.
type TranscriptSegment struct {
	UserID        string  `json:"user_id"`
	StartMS       int64   `json:"start_ms"`
	EndMS         int64   `json:"end_ms"`
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	MinConfidence float64 `json:"min_confidence"`

	// AgentCall marks segments that triggered the wake word.
	AgentCall           bool    `json:"agent_call"`
	AgentCallKeyword    string  `json:"agent_call_keyword,omitempty"`
	AgentCallConfidence float64 `json:"agent_call_confidence,omitempty"`
}

// Meeting is the backend's meeting record as seen by the core.
type Meeting struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Status          meet.MeetingStatus `json:"status"`
	HostUserID      string             `json:"hostUserId"`
	MaxParticipants int                `json:"maxParticipants"`
}

// Store is the backend surface the core depends on. *Client implements it;
// tests use the mock subpackage.
type Store interface {
	// Meeting fetches a meeting record.
	Meeting(ctx context.Context, meetingID string) (*Meeting, error)

	// SetMeetingStatus transitions the meeting lifecycle state.
	SetMeetingStatus(ctx context.Context, meetingID string, status meet.MeetingStatus) error

	// UploadTranscriptSegment persists one finalized STT segment and
	// returns its meeting-monotonic ID.
	UploadTranscriptSegment(ctx context.Context, meetingID string, seg TranscriptSegment) (int64, error)

	// TranscriptSince returns utterances with ID > afterID, oldest first.
	// Used to re-hydrate L0 after a context restore.
	TranscriptSince(ctx context.Context, meetingID string, afterID int64) ([]meet.Utterance, error)

	// PersistChat stores a chat message and returns its ID and timestamp.
	PersistChat(ctx context.Context, meetingID, userID, content string) (string, time.Time, error)

	// CompleteMeeting marks the meeting finished after the worker drains.
	CompleteMeeting(ctx context.Context, meetingID string) error

	// UploadRecording stores recorded media. Payloads over [MaxUploadBytes]
	// are rejected with an error wrapping meet.ErrInvalidInput.
	UploadRecording(ctx context.Context, meetingID, filename string, r io.Reader, size int64) error
}

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates a Client for the backend at baseURL, authenticating with the
// service token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid baseURL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Meeting implements Store.
func (c *Client) Meeting(ctx context.Context, meetingID string) (*Meeting, error) {
	var m Meeting
	if err := c.doJSON(ctx, http.MethodGet, "/meetings/"+meetingID, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetMeetingStatus implements Store.
func (c *Client) SetMeetingStatus(ctx context.Context, meetingID string, status meet.MeetingStatus) error {
	body := map[string]string{"status": string(status)}
	return c.doJSON(ctx, http.MethodPatch, "/meetings/"+meetingID, body, nil)
}

type segmentResponse struct {
	ID int64 `json:"id"`
}

// UploadTranscriptSegment implements Store.
func (c *Client) UploadTranscriptSegment(ctx context.Context, meetingID string, seg TranscriptSegment) (int64, error) {
	var resp segmentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/meetings/"+meetingID+"/transcript-segments", seg, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// TranscriptSince implements Store.
func (c *Client) TranscriptSince(ctx context.Context, meetingID string, afterID int64) ([]meet.Utterance, error) {
	var out []meet.Utterance
	path := fmt.Sprintf("/meetings/%s/transcript-segments?after=%d", meetingID, afterID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type chatResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// PersistChat implements Store.
func (c *Client) PersistChat(ctx context.Context, meetingID, userID, content string) (string, time.Time, error) {
	body := map[string]string{"userId": userID, "content": content}
	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/meetings/"+meetingID+"/chat-messages", body, &resp); err != nil {
		return "", time.Time{}, err
	}
	return resp.ID, resp.CreatedAt, nil
}

// CompleteMeeting implements Store.
func (c *Client) CompleteMeeting(ctx context.Context, meetingID string) error {
	return c.doJSON(ctx, http.MethodPost, "/meetings/"+meetingID+"/complete", nil, nil)
}

// UploadRecording implements Store.
func (c *Client) UploadRecording(ctx context.Context, meetingID, filename string, r io.Reader, size int64) error {
	if size > MaxUploadBytes {
		return fmt.Errorf("backend: %w: recording %d bytes exceeds %d byte limit", meet.ErrInvalidInput, size, MaxUploadBytes)
	}

	path := "/meetings/" + meetingID + "/recordings?filename=" + url.QueryEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, io.LimitReader(r, MaxUploadBytes))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %w: upload recording: %v", meet.ErrExternal, err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %w: %s %s: %v", meet.ErrExternal, method, path, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("backend: %w: %s", meet.ErrInvalidInput, msg)
	case http.StatusForbidden:
		return fmt.Errorf("backend: %w: %s", meet.ErrPermissionDenied, msg)
	case http.StatusNotFound:
		return fmt.Errorf("backend: %w: %s", meet.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("backend: %w: %s", meet.ErrConflict, msg)
	default:
		return fmt.Errorf("backend: %w: status %d: %s", meet.ErrExternal, resp.StatusCode, msg)
	}
}
