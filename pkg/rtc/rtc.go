// Package rtc abstracts the media transport a meeting worker uses to join a
// room: receiving per-participant audio tracks and publishing the
// assistant's synthesized speech.
//
// The signaling hub brokers SDP offers and ICE candidates between browser
// peers; the worker joins the same room as an ordinary peer through a
// Transport implementation.
package rtc

import "context"

// TrackEvent describes activity on a remote participant's audio track.
type TrackEvent int

const (
	// TrackAdded fires when a participant starts publishing audio.
	TrackAdded TrackEvent = iota
	// TrackRemoved fires when the participant's track ends.
	TrackRemoved
	// SpeechStarted fires when voice activity begins on the track.
	SpeechStarted
	// SpeechEnded fires when voice activity stops on the track.
	SpeechEnded
)

// RemoteTrack is one participant's inbound audio stream.
type RemoteTrack interface {
	// ParticipantID identifies the publishing participant.
	ParticipantID() string

	// ParticipantName is the display name announced at join time.
	ParticipantName() string

	// ReadPacket returns the next encoded audio packet (Opus payload).
	// Blocks until a packet arrives, the track ends, or ctx is done.
	ReadPacket(ctx context.Context) ([]byte, error)
}

// TrackHandler receives track lifecycle and voice-activity events. track is
// nil for SpeechStarted and SpeechEnded when the transport reports activity
// per participant rather than per track.
type TrackHandler func(event TrackEvent, participantID string, track RemoteTrack)

// Room is a joined meeting room.
type Room interface {
	// OnTrack registers the handler for remote track events. Must be called
	// before audio can be received; calling it again replaces the handler.
	OnTrack(h TrackHandler)

	// PublishAudio sends a frame of 16-bit PCM into the room as the
	// assistant's voice.
	PublishAudio(ctx context.Context, pcm []byte) error

	// Leave disconnects from the room and releases media resources.
	Leave() error
}

// Transport dials the signaling hub and joins rooms.
type Transport interface {
	// Join connects to the named meeting room, authenticating with token.
	Join(ctx context.Context, meetingID, token string) (Room, error)
}
