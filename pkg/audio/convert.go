package audio

// DownmixToMono averages interleaved L+R stereo into mono. Uses int32
// arithmetic to avoid overflow and clamps to the int16 range. Input that is
// not a whole number of stereo frames has its trailing bytes dropped.
func DownmixToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. When srcRate == dstRate the input is returned
// unchanged.
func ResampleMono(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}

	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ToMono16k normalizes a decoded frame to 16kHz mono, the format the STT
// providers expect. Downmix happens before resampling so only one channel
// is interpolated.
func ToMono16k(f Frame) []byte {
	pcm := f.Data
	if f.Channels == 2 {
		pcm = DownmixToMono(pcm)
	}
	return ResampleMono(pcm, f.SampleRate, 16000)
}
