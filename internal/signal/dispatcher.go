package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// ChatStore persists chat messages. Implemented by the backend client.
type ChatStore interface {
	PersistChat(ctx context.Context, meetingID, userID, content string) (messageID string, createdAt time.Time, err error)
}

// Session is one connected participant's dispatch context.
type Session struct {
	MeetingID string
	UserID    string
	UserName  string
	Role      meet.Role
}

// Handler processes one inbound message. Returning stop=true ends the
// connection's read loop.
type Handler func(ctx context.Context, s *Session, env Envelope) (stop bool)

// Dispatcher routes inbound messages to kind-specific handlers. Handlers
// never propagate errors across the socket boundary: user-facing problems
// become an error message to that user, everything else is logged.
type Dispatcher struct {
	registry *Registry
	chat     ChatStore
	metrics  *observe.Metrics
	handlers map[string]Handler
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherMetrics overrides the metrics instance, for tests.
func WithDispatcherMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher builds the kind -> handler table.
func NewDispatcher(registry *Registry, chat ChatStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		chat:     chat,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(d)
	}
	d.handlers = map[string]Handler{
		KindJoin:               d.handleJoin,
		KindOffer:              d.relaySDP(KindOffer),
		KindAnswer:             d.relaySDP(KindAnswer),
		KindICECandidate:       d.handleICECandidate,
		KindMute:               d.handleMute,
		KindForceMute:          d.handleForceMute,
		KindScreenShareStart:   d.announceScreenShare(KindScreenShareStarted),
		KindScreenShareStop:    d.announceScreenShare(KindScreenShareStopped),
		KindScreenOffer:        d.relayScreen(KindScreenOffer),
		KindScreenAnswer:       d.relayScreen(KindScreenAnswer),
		KindScreenICECandidate: d.handleScreenICE,
		KindChatMessage:        d.handleChat,
		KindAssistantStatus:    d.handleAssistantStatus,
		KindLeave:              d.handleLeave,
	}
	return d
}

// Dispatch routes one message. Unknown kinds log a warning and continue.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, env Envelope) (stop bool) {
	h, ok := d.handlers[env.Type]
	if !ok {
		slog.Warn("unknown signaling message kind",
			"meetingID", s.MeetingID, "userID", s.UserID, "kind", env.Type)
		return false
	}
	d.metrics.SignalMessages.Add(ctx, 1)
	return h(ctx, s, env)
}

// ── handlers ──

func (d *Dispatcher) handleJoin(ctx context.Context, s *Session, _ Envelope) bool {
	// JOINED (with the current participant list) goes to the caller;
	// everyone else learns about the newcomer.
	d.registry.SendToUser(ctx, s.MeetingID, s.UserID, joinedMsg{
		Type:         KindJoined,
		Participants: d.registry.Participants(s.MeetingID),
	})
	p, _ := d.registry.Participant(s.MeetingID, s.UserID)
	d.registry.Broadcast(ctx, s.MeetingID, participantJoinedMsg{
		Type:        KindParticipantJoined,
		Participant: p,
	}, s.UserID)
	return false
}

type sdpPayload struct {
	TargetUserID string          `json:"targetUserId"`
	SDP          json.RawMessage `json:"sdp"`
}

// relaySDP forwards offer/answer to the target with fromUserId stamped.
// Missing target or SDP drops the message silently per protocol.
func (d *Dispatcher) relaySDP(kind string) Handler {
	return func(ctx context.Context, s *Session, env Envelope) bool {
		var p sdpPayload
		if err := env.Payload(&p); err != nil || p.TargetUserID == "" || len(p.SDP) == 0 {
			slog.Debug("dropping malformed SDP relay",
				"meetingID", s.MeetingID, "userID", s.UserID, "kind", kind)
			return false
		}
		d.registry.SendToUser(ctx, s.MeetingID, p.TargetUserID, sdpRelayMsg{
			Type:       kind,
			SDP:        p.SDP,
			FromUserID: s.UserID,
		})
		return false
	}
}

type icePayload struct {
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

func (d *Dispatcher) handleICECandidate(ctx context.Context, s *Session, env Envelope) bool {
	var p icePayload
	if err := env.Payload(&p); err != nil || len(p.Candidate) == 0 {
		return false
	}
	msg := iceRelayMsg{Type: KindICECandidate, Candidate: p.Candidate, FromUserID: s.UserID}
	if p.TargetUserID != "" {
		d.registry.SendToUser(ctx, s.MeetingID, p.TargetUserID, msg)
	} else {
		d.registry.Broadcast(ctx, s.MeetingID, msg, s.UserID)
	}
	return false
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

func (d *Dispatcher) handleMute(ctx context.Context, s *Session, env Envelope) bool {
	var p mutePayload
	if err := env.Payload(&p); err != nil {
		return false
	}
	if !d.registry.UpdateMute(s.MeetingID, s.UserID, p.Muted) {
		return false
	}
	d.registry.Broadcast(ctx, s.MeetingID, participantMutedMsg{
		Type:   KindParticipantMuted,
		UserID: s.UserID,
		Muted:  p.Muted,
	}, s.UserID)
	return false
}

type forceMutePayload struct {
	TargetUserID string `json:"targetUserId"`
	Muted        bool   `json:"muted"`
}

func (d *Dispatcher) handleForceMute(ctx context.Context, s *Session, env Envelope) bool {
	var p forceMutePayload
	if err := env.Payload(&p); err != nil || p.TargetUserID == "" {
		d.registry.SendToUser(ctx, s.MeetingID, s.UserID,
			errorMessage(CodeInvalidInput, "force-mute requires targetUserId"))
		return false
	}
	if s.Role != meet.RoleHost {
		d.registry.SendToUser(ctx, s.MeetingID, s.UserID,
			errorMessage(CodePermissionDenied, "only the host can force-mute"))
		return false
	}
	if p.TargetUserID == s.UserID {
		d.registry.SendToUser(ctx, s.MeetingID, s.UserID,
			errorMessage(CodeInvalidInput, "cannot force-mute yourself"))
		return false
	}
	if !d.registry.UpdateMute(s.MeetingID, p.TargetUserID, p.Muted) {
		d.registry.SendToUser(ctx, s.MeetingID, s.UserID,
			errorMessage(CodeInvalidInput, "target user not in meeting"))
		return false
	}

	d.registry.SendToUser(ctx, s.MeetingID, p.TargetUserID, forceMutedMsg{
		Type:   KindForceMuted,
		ByUser: s.UserID,
		Muted:  p.Muted,
	})
	d.registry.Broadcast(ctx, s.MeetingID, participantMutedMsg{
		Type:   KindParticipantMuted,
		UserID: p.TargetUserID,
		Muted:  p.Muted,
	}, "")
	return false
}

func (d *Dispatcher) announceScreenShare(kind string) Handler {
	return func(ctx context.Context, s *Session, _ Envelope) bool {
		d.registry.Broadcast(ctx, s.MeetingID, screenShareMsg{
			Type:   kind,
			UserID: s.UserID,
		}, s.UserID)
		return false
	}
}

func (d *Dispatcher) relayScreen(kind string) Handler {
	return func(ctx context.Context, s *Session, env Envelope) bool {
		var p sdpPayload
		if err := env.Payload(&p); err != nil || p.TargetUserID == "" {
			slog.Warn("screen relay missing targetUserId",
				"meetingID", s.MeetingID, "userID", s.UserID, "kind", kind)
			return false
		}
		d.registry.SendToUser(ctx, s.MeetingID, p.TargetUserID, sdpRelayMsg{
			Type:       kind,
			SDP:        p.SDP,
			FromUserID: s.UserID,
		})
		return false
	}
}

func (d *Dispatcher) handleScreenICE(ctx context.Context, s *Session, env Envelope) bool {
	var p icePayload
	if err := env.Payload(&p); err != nil || p.TargetUserID == "" {
		slog.Warn("screen ICE relay missing targetUserId",
			"meetingID", s.MeetingID, "userID", s.UserID)
		return false
	}
	d.registry.SendToUser(ctx, s.MeetingID, p.TargetUserID, iceRelayMsg{
		Type:       KindScreenICECandidate,
		Candidate:  p.Candidate,
		FromUserID: s.UserID,
	})
	return false
}

type chatPayload struct {
	Content string `json:"content"`
}

// handleChat persists the message and broadcasts it to everyone including
// the sender, enriched with the persisted ID and timestamp.
func (d *Dispatcher) handleChat(ctx context.Context, s *Session, env Envelope) bool {
	var p chatPayload
	if err := env.Payload(&p); err != nil || p.Content == "" {
		return false
	}

	msgID, createdAt, err := d.chat.PersistChat(ctx, s.MeetingID, s.UserID, p.Content)
	if err != nil {
		slog.Error("failed to persist chat message",
			"meetingID", s.MeetingID, "userID", s.UserID, "error", err)
		d.registry.SendToUser(ctx, s.MeetingID, s.UserID,
			errorMessage(CodeInternal, "failed to deliver chat message"))
		return false
	}

	d.registry.Broadcast(ctx, s.MeetingID, chatBroadcastMsg{
		Type:      KindChatMessage,
		MessageID: msgID,
		UserID:    s.UserID,
		UserName:  s.UserName,
		Content:   p.Content,
		CreatedAt: createdAt,
	}, "")
	return false
}

type assistantStatusPayload struct {
	Status string `json:"status"`
}

// handleAssistantStatus broadcasts an ephemeral progress indicator
// ("thinking", "executing") from the assistant. Not persisted: the status
// is UI state, not transcript.
func (d *Dispatcher) handleAssistantStatus(ctx context.Context, s *Session, env Envelope) bool {
	var p assistantStatusPayload
	if err := env.Payload(&p); err != nil || p.Status == "" {
		return false
	}
	d.registry.Broadcast(ctx, s.MeetingID, assistantStatusMsg{
		Type:   KindAssistantStatus,
		UserID: s.UserID,
		Status: p.Status,
	}, s.UserID)
	return false
}

func (d *Dispatcher) handleLeave(_ context.Context, s *Session, _ Envelope) bool {
	slog.Info("participant leaving", "meetingID", s.MeetingID, "userID", s.UserID)
	return true
}
