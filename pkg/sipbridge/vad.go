package sipbridge

import "encoding/binary"

// DefaultVADThreshold is the peak amplitude (of 32767 full scale) above
// which a chunk counts as speech.
const DefaultVADThreshold = 1000

// HasVoice reports whether a PCM16 little-endian chunk contains speech,
// judged by peak amplitude against the threshold. Peak-based rather than
// RMS: cheap enough to run on every poller tick, at the cost of false
// positives on transient noise and false negatives on soft speech.
func HasVoice(pcm []byte, threshold int) bool {
	return PeakAmplitude(pcm) > threshold
}

// PeakAmplitude returns the maximum absolute sample value in a PCM16
// little-endian chunk, clamped to 32767 full scale. A trailing odd byte
// is ignored.
func PeakAmplitude(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		if sample < 0 {
			sample = -sample
		}
		if sample > 32767 {
			// int16 min negates to 32768.
			sample = 32767
		}
		if sample > peak {
			peak = sample
		}
	}
	return peak
}
