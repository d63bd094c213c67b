// Package mock provides scriptable stt doubles for tests.
package mock

import (
	"context"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/stt"
)

// Provider is a mock stt.Provider that hands out pre-created sessions.
type Provider struct {
	mu       sync.Mutex
	Sessions []*Session
	Err      error

	// Started counts StartStream calls.
	Started int
}

var _ stt.Provider = (*Provider)(nil)

// StartStream returns the next queued session, or a fresh one when the
// queue is empty.
func (p *Provider) StartStream(_ context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Started++
	if len(p.Sessions) > 0 {
		s := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return s, nil
	}
	return NewSession(), nil
}

// Session is a mock stt.SessionHandle. Tests push transcripts with
// EmitInterim/EmitFinal and inspect sent audio via Sent.
type Session struct {
	mu     sync.Mutex
	Sent   [][]byte
	EOS    int
	closed bool

	interims chan stt.Transcript
	finals   chan stt.Transcript
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession creates a ready-to-use mock session.
func NewSession() *Session {
	return &Session{
		interims: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Sent = append(s.Sent, cp)
	return nil
}

func (s *Session) SignalEndOfSpeech() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EOS++
	return nil
}

func (s *Session) Interims() <-chan stt.Transcript { return s.interims }
func (s *Session) Finals() <-chan stt.Transcript   { return s.finals }

// EmitInterim delivers an interim transcript to the consumer.
func (s *Session) EmitInterim(t stt.Transcript) { t.IsFinal = false; s.interims <- t }

// EmitFinal delivers a final transcript to the consumer.
func (s *Session) EmitFinal(t stt.Transcript) { t.IsFinal = true; s.finals <- t }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.interims)
	close(s.finals)
	return nil
}
