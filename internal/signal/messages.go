// Package signal implements the per-meeting WebRTC signaling hub: a
// connection registry with displacement semantics, a strategy-dispatched
// message protocol for offer/answer/ICE exchange, mute control, screen
// share and chat, and the websocket server tying them together.
package signal

import (
	"encoding/json"
	"time"

	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Inbound message kinds.
const (
	KindJoin               = "join"
	KindOffer              = "offer"
	KindAnswer             = "answer"
	KindICECandidate       = "ice-candidate"
	KindMute               = "mute"
	KindForceMute          = "force-mute"
	KindScreenShareStart   = "screen-share-start"
	KindScreenShareStop    = "screen-share-stop"
	KindScreenOffer        = "screen-offer"
	KindScreenAnswer       = "screen-answer"
	KindScreenICECandidate = "screen-ice-candidate"
	KindChatMessage        = "chat-message"
	KindAssistantStatus    = "assistant-status"
	KindLeave              = "leave"
)

// Outbound message kinds.
const (
	KindConnected          = "connected"
	KindJoined             = "joined"
	KindParticipantJoined  = "participant-joined"
	KindParticipantLeft    = "participant-left"
	KindParticipantMuted   = "participant-muted"
	KindForceMuted         = "force-muted"
	KindScreenShareStarted = "screen-share-started"
	KindScreenShareStopped = "screen-share-stopped"
	KindError              = "error"
)

// Error codes carried by error messages.
const (
	CodePermissionDenied = "permission_denied"
	CodeInvalidInput     = "invalid_input"
	CodeInternal         = "internal_error"
)

// Envelope is the wire shape of every inbound message: a kind plus the
// kind-specific payload, which handlers decode themselves.
type Envelope struct {
	Type string `json:"type"`

	// Raw is the full message body, retained so handlers can decode their
	// payload fields.
	Raw json.RawMessage `json:"-"`
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	env.Raw = json.RawMessage(data)
	return env, nil
}

// Payload decodes the envelope body into v.
func (e Envelope) Payload(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// ---- outbound payloads (camelCase JSON) ----

type connectedMsg struct {
	Type      string `json:"type"`
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
}

type joinedMsg struct {
	Type         string             `json:"type"`
	Participants []meet.Participant `json:"participants"`
}

type participantJoinedMsg struct {
	Type        string    `json:"type"`
	Participant meet.Participant `json:"participant"`
}

type participantLeftMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type participantMutedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Muted  bool   `json:"muted"`
}

type forceMutedMsg struct {
	Type   string `json:"type"`
	ByUser string `json:"byUserId"`
	Muted  bool   `json:"muted"`
}

type sdpRelayMsg struct {
	Type       string          `json:"type"`
	SDP        json.RawMessage `json:"sdp"`
	FromUserID string          `json:"fromUserId"`
}

type iceRelayMsg struct {
	Type       string          `json:"type"`
	Candidate  json.RawMessage `json:"candidate"`
	FromUserID string          `json:"fromUserId"`
}

type screenShareMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type chatBroadcastMsg struct {
	Type      string    `json:"type"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type assistantStatusMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(code, message string) errorMsg {
	return errorMsg{Type: KindError, Code: code, Message: message}
}
