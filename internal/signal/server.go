package signal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/moyeo-ai/moyeo/internal/observe"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// Claims is the verified identity carried by a signaling token.
type Claims struct {
	UserID   string
	UserName string
	Role     meet.Role
}

// TokenVerifier validates the ?token query parameter for a meeting.
type TokenVerifier interface {
	Verify(token, meetingID string) (Claims, error)
}

// MeetingControl starts and ends meetings on behalf of the host. Wired to
// the worker launcher and the product backend.
type MeetingControl interface {
	StartMeeting(ctx context.Context, meetingID, hostUserID string) error
	EndMeeting(ctx context.Context, meetingID, hostUserID string) error
}

// RoomInfoProvider supplies the room metadata returned by the REST surface.
type RoomInfoProvider interface {
	RoomInfo(ctx context.Context, meetingID, userID string) (*RoomInfo, error)
}

// RoomInfo is the GET /meetings/{id}/room response body.
type RoomInfo struct {
	MeetingID       string             `json:"meetingId"`
	Status          meet.MeetingStatus `json:"status"`
	Participants    []meet.Participant `json:"participants"`
	ICEServers      []ICEServer        `json:"iceServers"`
	MaxParticipants int                `json:"maxParticipants"`
}

// ICEServer is one STUN/TURN entry of the room info.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Server is the signaling hub's HTTP surface: the websocket endpoint plus
// the meeting-room REST handlers.
type Server struct {
	registry   *Registry
	dispatcher *Dispatcher
	verifier   TokenVerifier
	control    MeetingControl
	rooms      RoomInfoProvider
	metrics    *observe.Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerMetrics overrides the metrics instance, for tests.
func WithServerMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates the hub HTTP surface.
func NewServer(registry *Registry, dispatcher *Dispatcher, verifier TokenVerifier, control MeetingControl, rooms RoomInfoProvider, opts ...ServerOption) *Server {
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		verifier:   verifier,
		control:    control,
		rooms:      rooms,
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the hub's routes:
//
//	GET  /meetings/{meetingID}/signal  — websocket, ?token=<jwt>
//	GET  /meetings/{meetingID}/room    — room info
//	POST /meetings/{meetingID}/start   — host only
//	POST /meetings/{meetingID}/end     — host only
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /meetings/{meetingID}/signal", s.handleSignal)
	mux.HandleFunc("GET /meetings/{meetingID}/room", s.handleRoomInfo)
	mux.HandleFunc("POST /meetings/{meetingID}/start", s.handleStart)
	mux.HandleFunc("POST /meetings/{meetingID}/end", s.handleEnd)
	return mux
}

// wsSender adapts a websocket connection to the registry's Sender.
type wsSender struct {
	conn *websocket.Conn

	// mu serializes writes; wsjson.Write is not safe for concurrent use.
	mu sync.Mutex
}

var _ Sender = (*wsSender)(nil)

func (w *wsSender) Send(ctx context.Context, msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsjson.Write(ctx, w.conn, msg)
}

func (w *wsSender) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("meetingID")

	claims, err := s.verifier.Verify(r.URL.Query().Get("token"), meetingID)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "meetingID", meetingID, "error", err)
		return
	}

	ctx := r.Context()
	sender := &wsSender{conn: conn}

	s.registry.Connect(ctx, meetingID, meet.Participant{
		UserID:   claims.UserID,
		UserName: claims.UserName,
		Role:     claims.Role,
	}, sender)
	s.metrics.ActiveConnections.Add(ctx, 1)
	defer func() {
		s.registry.Disconnect(context.WithoutCancel(ctx), meetingID, claims.UserID)
		s.metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1)
	}()

	if err := sender.Send(ctx, connectedMsg{
		Type:      KindConnected,
		MeetingID: meetingID,
		UserID:    claims.UserID,
	}); err != nil {
		return
	}

	sess := &Session{
		MeetingID: meetingID,
		UserID:    claims.UserID,
		UserName:  claims.UserName,
		Role:      claims.Role,
	}
	s.readLoop(ctx, conn, sess)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("signaling read ended",
					"meetingID", sess.MeetingID, "userID", sess.UserID, "error", err)
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			slog.Warn("malformed signaling frame",
				"meetingID", sess.MeetingID, "userID", sess.UserID, "error", err)
			continue
		}
		if stop := s.dispatcher.Dispatch(ctx, sess, env); stop {
			return
		}
	}
}

// ── meeting room REST ──

func (s *Server) handleRoomInfo(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("meetingID")
	claims, ok := s.authorize(w, r, meetingID)
	if !ok {
		return
	}

	info, err := s.rooms.RoomInfo(r.Context(), meetingID, claims.UserID)
	if err != nil {
		writeRESTError(w, err)
		return
	}
	// Live participants come from the registry, not the backend record.
	info.Participants = s.registry.Participants(meetingID)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.control.StartMeeting)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.control.EndMeeting)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error) {
	meetingID := r.PathValue("meetingID")
	claims, ok := s.authorize(w, r, meetingID)
	if !ok {
		return
	}
	if claims.Role != meet.RoleHost {
		http.Error(w, "host role required", http.StatusForbidden)
		return
	}
	if err := op(r.Context(), meetingID, claims.UserID); err != nil {
		writeRESTError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize verifies the bearer token (or ?token=) for REST calls.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, meetingID string) (Claims, bool) {
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		token = auth[7:]
	}
	claims, err := s.verifier.Verify(token, meetingID)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return Claims{}, false
	}
	return claims, true
}

func writeRESTError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meet.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, meet.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, meet.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, meet.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
