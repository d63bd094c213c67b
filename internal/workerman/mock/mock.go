// Package mock provides a scriptable workerman.Manager for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyeo-ai/moyeo/internal/workerman"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Manager is a mock workerman.Manager keeping worker state in memory.
type Manager struct {
	mu      sync.Mutex
	workers map[string]*meet.WorkerInfo

	StartErr error
	StopErr  error

	// Started records every StartParams received.
	Started []workerman.StartParams
}

var _ workerman.Manager = (*Manager)(nil)

// NewManager creates an empty mock manager.
func NewManager() *Manager {
	return &Manager{workers: make(map[string]*meet.WorkerInfo)}
}

func (m *Manager) Start(_ context.Context, params workerman.StartParams) (*meet.WorkerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, params)
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	if info, ok := m.workers[params.MeetingID]; ok && info.Status == meet.WorkerRunning {
		return info, nil
	}
	info := &meet.WorkerInfo{
		MeetingID: params.MeetingID,
		WorkerID:  "mock-" + params.MeetingID,
		Status:    meet.WorkerRunning,
	}
	m.workers[params.MeetingID] = info
	return info, nil
}

func (m *Manager) Stop(_ context.Context, meetingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StopErr != nil {
		return m.StopErr
	}
	if _, ok := m.workers[meetingID]; !ok {
		return fmt.Errorf("mock: %w: no worker for %q", meet.ErrNotFound, meetingID)
	}
	delete(m.workers, meetingID)
	return nil
}

func (m *Manager) Status(_ context.Context, meetingID string) (*meet.WorkerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.workers[meetingID]; ok {
		return info, nil
	}
	return &meet.WorkerInfo{MeetingID: meetingID, Status: meet.WorkerNotFound}, nil
}

func (m *Manager) List(_ context.Context, meetingID string) ([]meet.WorkerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []meet.WorkerInfo
	for id, info := range m.workers {
		if meetingID == "" || id == meetingID {
			out = append(out, *info)
		}
	}
	return out, nil
}
