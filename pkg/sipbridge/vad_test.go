package sipbridge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPeakAmplitude(t *testing.T) {
	assert.Equal(t, 0, PeakAmplitude(nil))
	assert.Equal(t, 0, PeakAmplitude(pcm16(0, 0, 0)))
	assert.Equal(t, 3000, PeakAmplitude(pcm16(0, 100, -3000, 250)))
	assert.Equal(t, 32767, PeakAmplitude(pcm16(32767, -32768)))
}

func TestPeakAmplitudeClampsInt16Min(t *testing.T) {
	// The negated minimum sample must not exceed full scale.
	assert.Equal(t, 32767, PeakAmplitude(pcm16(-32768)))
	assert.True(t, HasVoice(pcm16(-32768), 32766))
	assert.False(t, HasVoice(pcm16(-32768), 32767))
}

func TestPeakAmplitudeIgnoresTrailingByte(t *testing.T) {
	chunk := append(pcm16(500, -700), 0xFF)
	assert.Equal(t, 700, PeakAmplitude(chunk))
}

func TestHasVoiceThresholdBoundary(t *testing.T) {
	at := pcm16(1000)
	above := pcm16(1001)

	assert.False(t, HasVoice(at, 1000), "peak equal to threshold is not voice")
	assert.True(t, HasVoice(above, 1000))
}

func TestHasVoiceMonotoneInThreshold(t *testing.T) {
	chunk := pcm16(0, 42, -5000, 1234)
	peak := PeakAmplitude(chunk)

	for threshold := 0; threshold < peak; threshold += 500 {
		assert.True(t, HasVoice(chunk, threshold), "threshold %d below peak %d", threshold, peak)
	}
	assert.False(t, HasVoice(chunk, peak))
}
