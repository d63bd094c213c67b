// Package clova provides an stt.Provider backed by the CLOVA Speech
// streaming WebSocket API. Each meeting worker is handed one pooled secret
// key through its environment and opens one session per speaker.
package clova

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/moyeo-ai/moyeo/pkg/stt"
)

const (
	defaultEndpoint   = "wss://clovaspeech-gw.ncloud.com/recog/v1/stream"
	defaultLanguage   = "ko-KR"
	defaultSampleRate = 16000
)

// Option configures a Provider.
type Option func(*Provider)

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// WithLanguage sets the default recognition language.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements stt.Provider against the CLOVA streaming API.
type Provider struct {
	secret   string
	endpoint string
	language string
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider. secret is the pooled CLOVA secret key assigned to
// this worker and must be non-empty.
func New(secret string, opts ...Option) (*Provider, error) {
	if secret == "" {
		return nil, errors.New("clova: secret must not be empty")
	}
	p := &Provider{
		secret:   secret,
		endpoint: defaultEndpoint,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming recognition session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("clova: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("X-CLOVASPEECH-API-KEY", p.secret)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("clova: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		interims: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("lang", lang)
	q.Set("sampleRate", strconv.Itoa(sr))
	q.Set("interimResults", "true")
	for _, kw := range cfg.Keywords {
		q.Add("boostings", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// recogResponse is the JSON frame CLOVA sends for recognition events.
type recogResponse struct {
	Type       string  `json:"type"` // "interim" or "final"
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	StartMS    int64   `json:"startTimestamp"`
	EndMS      int64   `json:"endTimestamp"`
}

type session struct {
	conn     *websocket.Conn
	interims chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM chunk for delivery.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("clova: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("clova: session is closed")
	}
}

// SignalEndOfSpeech asks the server to finalize pending interim results.
func (s *session) SignalEndOfSpeech() error {
	select {
	case <-s.done:
		return errors.New("clova: session is closed")
	default:
	}
	return s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"endOfSpeech"}`))
}

func (s *session) Interims() <-chan stt.Transcript { return s.interims }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"closeStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.interims)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		t, final, ok := parseRecogResponse(msg)
		if !ok {
			continue
		}
		target := s.interims
		if final {
			target = s.finals
		}
		select {
		case target <- t:
		case <-s.done:
		}
	}
}

// parseRecogResponse parses one server frame. Returns ok=false for frames
// that carry no recognition text (config acks, keepalives).
func parseRecogResponse(data []byte) (t stt.Transcript, final, ok bool) {
	var resp recogResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false, false
	}
	if resp.Type != "interim" && resp.Type != "final" {
		return stt.Transcript{}, false, false
	}
	if resp.Text == "" {
		return stt.Transcript{}, false, false
	}

	final = resp.Type == "final"
	return stt.Transcript{
		Text:       resp.Text,
		IsFinal:    final,
		Confidence: resp.Confidence,
		Start:      time.Duration(resp.StartMS) * time.Millisecond,
		Duration:   time.Duration(resp.EndMS-resp.StartMS) * time.Millisecond,
	}, final, true
}
