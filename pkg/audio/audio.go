// Package audio provides the PCM plumbing between the media transport and
// the speech providers: Opus decoding, channel downmix, and sample-rate
// conversion. All PCM is 16-bit little-endian.
package audio

import "time"

// Frame is a chunk of decoded PCM with its format attached.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int
	Timestamp  time.Time
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
