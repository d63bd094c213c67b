package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moyeo-ai/moyeo/internal/backend"
	"github.com/moyeo-ai/moyeo/internal/signal"
	"github.com/moyeo-ai/moyeo/internal/workerman"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// workerTokenTTL bounds the signaling token minted for a worker. Meetings
// longer than this lose their assistant.
const workerTokenTTL = 12 * time.Hour

// assistantName is the display name the worker joins under.
const assistantName = "부덕이"

// meetingControl implements the hub's MeetingControl and RoomInfoProvider:
// host-initiated start/end transitions plus the room metadata handed to
// connecting clients.
type meetingControl struct {
	store    backend.Store
	launcher *workerman.Launcher
	signer   *signal.HS256
	ice      []signal.ICEServer
}

var (
	_ signal.MeetingControl   = (*meetingControl)(nil)
	_ signal.RoomInfoProvider = (*meetingControl)(nil)
)

func newMeetingControl(store backend.Store, launcher *workerman.Launcher, signer *signal.HS256, ice []signal.ICEServer) *meetingControl {
	return &meetingControl{store: store, launcher: launcher, signer: signer, ice: ice}
}

// StartMeeting transitions SCHEDULED → ONGOING and launches the meeting's
// worker. Starting an already-ongoing meeting is a no-op; a completed
// meeting cannot be restarted.
func (m *meetingControl) StartMeeting(ctx context.Context, meetingID, hostUserID string) error {
	rec, err := m.store.Meeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if rec.HostUserID != hostUserID {
		return fmt.Errorf("app: %w: only the host can start meeting %q", meet.ErrPermissionDenied, meetingID)
	}
	switch rec.Status {
	case meet.MeetingOngoing:
		return nil
	case meet.MeetingCompleted:
		return fmt.Errorf("app: %w: meeting %q is already completed", meet.ErrConflict, meetingID)
	}

	if err := m.store.SetMeetingStatus(ctx, meetingID, meet.MeetingOngoing); err != nil {
		return err
	}

	token, err := m.signer.Sign(signal.Claims{
		UserID:   "assistant:" + meetingID,
		UserName: assistantName,
		Role:     meet.RoleParticipant,
	}, meetingID, workerTokenTTL)
	if err != nil {
		return err
	}

	if _, err := m.launcher.Launch(ctx, meetingID, token); err != nil {
		// Put the meeting back so the host can retry the start.
		if revertErr := m.store.SetMeetingStatus(ctx, meetingID, meet.MeetingScheduled); revertErr != nil {
			slog.Error("failed to revert meeting status after launch failure",
				"meetingID", meetingID, "error", revertErr)
		}
		return err
	}
	return nil
}

// EndMeeting transitions ONGOING → COMPLETED and tears the worker down.
// Ending an already-completed meeting is a no-op.
func (m *meetingControl) EndMeeting(ctx context.Context, meetingID, hostUserID string) error {
	rec, err := m.store.Meeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if rec.HostUserID != hostUserID {
		return fmt.Errorf("app: %w: only the host can end meeting %q", meet.ErrPermissionDenied, meetingID)
	}
	if rec.Status == meet.MeetingCompleted {
		return nil
	}

	// The worker may already have drained itself when the room emptied.
	if err := m.launcher.Terminate(ctx, meetingID); err != nil && !errors.Is(err, meet.ErrNotFound) {
		slog.Warn("worker termination failed", "meetingID", meetingID, "error", err)
	}
	return m.store.SetMeetingStatus(ctx, meetingID, meet.MeetingCompleted)
}

// RoomInfo implements RoomInfoProvider. Live participants are filled in by
// the hub from its connection registry.
func (m *meetingControl) RoomInfo(ctx context.Context, meetingID, _ string) (*signal.RoomInfo, error) {
	rec, err := m.store.Meeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return &signal.RoomInfo{
		MeetingID:       meetingID,
		Status:          rec.Status,
		ICEServers:      m.ice,
		MaxParticipants: rec.MaxParticipants,
	}, nil
}
