package audio

import (
	"fmt"
	"time"

	"layeh.com/gopus"
)

// WebRTC audio is Opus at 48kHz stereo with 20ms frames.
const (
	OpusSampleRate = 48000
	OpusChannels   = 2
	opusFrameSize  = 960 // samples per channel per 20ms frame
)

// OpusDecoder decodes a single participant's Opus stream to PCM frames.
// Not safe for concurrent use; create one per track.
type OpusDecoder struct {
	dec      *gopus.Decoder
	channels int
	rate     int
}

// NewOpusDecoder creates a decoder for the standard WebRTC Opus format.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, channels: OpusChannels, rate: OpusSampleRate}, nil
}

// Decode decodes one Opus packet into a PCM frame.
func (d *OpusDecoder) Decode(packet []byte) (Frame, error) {
	samples, err := d.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: opus decode: %w", err)
	}

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return Frame{
		Data:       data,
		SampleRate: d.rate,
		Channels:   d.channels,
		Timestamp:  time.Now(),
	}, nil
}
