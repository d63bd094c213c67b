package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/moyeo-ai/moyeo/internal/signal"
	"github.com/moyeo-ai/moyeo/pkg/meet"
)

// RoomEvent is a presence change observed on the signaling connection.
type RoomEvent struct {
	// Kind is signal.KindParticipantJoined or signal.KindParticipantLeft.
	Kind   string
	UserID string

	// Humans is the number of connected participants besides the assistant
	// after this change.
	Humans int
}

// SignalClient is the worker's signaling connection: it joins the meeting
// as the assistant participant, posts chat messages, and reports presence
// changes so the worker can detect an emptied room.
type SignalClient struct {
	conn   *websocket.Conn
	events chan RoomEvent

	// selfID is the assistant's own participant ID, learned from the
	// connected handshake frame.
	selfID string

	// humans tracks connected participants other than the assistant itself.
	humans map[string]struct{}
}

// DialSignal connects to the hub, performs the join handshake, and starts
// reading. The returned client's Events channel closes when the connection
// drops.
func DialSignal(ctx context.Context, signalURL, meetingID, token string) (*SignalClient, error) {
	u := strings.TrimRight(signalURL, "/") + "/meetings/" + meetingID + "/signal?token=" + token
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("worker: %w: dial signaling hub: %v", meet.ErrExternal, err)
	}

	c := &SignalClient{
		conn:   conn,
		events: make(chan RoomEvent, 16),
		humans: make(map[string]struct{}),
	}
	if err := wsjson.Write(ctx, conn, map[string]string{"type": signal.KindJoin}); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("worker: %w: signaling join: %v", meet.ErrExternal, err)
	}
	go c.readLoop(ctx)
	return c, nil
}

// Events returns the presence stream. Closed when the connection ends.
func (c *SignalClient) Events() <-chan RoomEvent { return c.events }

// SendChat posts a chat message as the assistant.
func (c *SignalClient) SendChat(ctx context.Context, content string) error {
	err := wsjson.Write(ctx, c.conn, map[string]string{
		"type":    signal.KindChatMessage,
		"content": content,
	})
	if err != nil {
		return fmt.Errorf("worker: %w: send chat: %v", meet.ErrExternal, err)
	}
	return nil
}

// SendStatus broadcasts an ephemeral progress indicator ("thinking",
// "executing") while the assistant works on an answer.
func (c *SignalClient) SendStatus(ctx context.Context, status string) error {
	err := wsjson.Write(ctx, c.conn, map[string]string{
		"type":   signal.KindAssistantStatus,
		"status": status,
	})
	if err != nil {
		return fmt.Errorf("worker: %w: send status: %v", meet.ErrExternal, err)
	}
	return nil
}

// Close ends the signaling session.
func (c *SignalClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "meeting ended")
}

type presenceFrame struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	Participant *struct {
		UserID string `json:"userId"`
	} `json:"participant"`
	Participants []struct {
		UserID string `json:"userId"`
	} `json:"participants"`
}

func (c *SignalClient) readLoop(ctx context.Context) {
	defer close(c.events)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var f presenceFrame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("unparseable signaling frame", "error", err)
			continue
		}

		switch f.Type {
		case signal.KindConnected:
			c.selfID = f.UserID
			delete(c.humans, c.selfID)
		case signal.KindJoined:
			for _, p := range f.Participants {
				if p.UserID != c.selfID {
					c.humans[p.UserID] = struct{}{}
				}
			}
		case signal.KindParticipantJoined:
			if f.Participant != nil && f.Participant.UserID != c.selfID {
				c.humans[f.Participant.UserID] = struct{}{}
				c.emit(ctx, RoomEvent{Kind: f.Type, UserID: f.Participant.UserID, Humans: len(c.humans)})
			}
		case signal.KindParticipantLeft:
			delete(c.humans, f.UserID)
			c.emit(ctx, RoomEvent{Kind: f.Type, UserID: f.UserID, Humans: len(c.humans)})
		}
	}
}

func (c *SignalClient) emit(ctx context.Context, ev RoomEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
