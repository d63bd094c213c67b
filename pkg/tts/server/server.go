// Package server provides a tts.Provider backed by an HTTP synthesis
// server exposing a /api/tts endpoint that accepts JSON and returns raw
// 16-bit PCM.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/tts"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 24000

	// maxResponseBytes caps a single synthesis response. A sentence of
	// speech never comes close; anything larger means a misbehaving server.
	maxResponseBytes = 32 << 20
)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithVoice sets the default voice for requests that do not name one.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSampleRate sets the PCM sample rate the server is configured for.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// Provider implements tts.Provider against an HTTP synthesis server.
type Provider struct {
	baseURL    string
	voice      string
	sampleRate int
	client     *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider for the server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("tts server: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("tts server: invalid baseURL: %w", err)
	}
	p := &Provider{
		baseURL:    baseURL,
		sampleRate: defaultSampleRate,
		client:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthesisPayload struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.Audio, error) {
	if req.Text == "" {
		return nil, errors.New("tts server: text must not be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}
	body, err := json.Marshal(synthesisPayload{
		Text:  req.Text,
		Voice: voice,
		Speed: req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("tts server: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts server: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/raw")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts server: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts server: status %d: %s", resp.StatusCode, string(msg))
	}

	pcm, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("tts server: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("tts server: empty audio response")
	}

	return &tts.Audio{
		PCM:        pcm,
		SampleRate: p.sampleRate,
		Channels:   1,
	}, nil
}
