package sipbridge

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// WAVHeaderSize is the fixed RIFF/fmt/data header length produced by
	// BuildWAVHeader and written by the telephony recorder.
	WAVHeaderSize = 44

	// FallbackWAVDuration is returned when a buffer cannot be parsed as
	// WAV. Treated as a soft error so playback scheduling still works.
	FallbackWAVDuration = 3 * time.Second
)

// BuildWAVHeader encodes a minimal 44-byte PCM WAV header for the given
// parameters. The caller must pass the rate of its own side: 16 kHz for
// telephony audio, 24 kHz for AI audio. A wrong rate yields a header
// describing the wrong duration, not a framing error.
func BuildWAVHeader(dataLength, sampleRate, channels, bitsPerSample int) []byte {
	header := make([]byte, WAVHeaderSize)

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLength))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLength))

	return header
}

// BuildWAVFile frames raw PCM data with a header in one allocation.
func BuildWAVFile(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	header := BuildWAVHeader(len(pcm), sampleRate, channels, bitsPerSample)
	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	return append(out, pcm...)
}

// ReadWAVDuration computes the playable duration of a WAV buffer from its
// data chunk size and format fields, rounded up to the millisecond.
// Returns FallbackWAVDuration if the RIFF magic is missing or the data
// chunk cannot be located.
func ReadWAVDuration(buf []byte) time.Duration {
	if len(buf) < WAVHeaderSize || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return FallbackWAVDuration
	}

	channels := int(binary.LittleEndian.Uint16(buf[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(buf[24:28]))
	bitsPerSample := int(binary.LittleEndian.Uint16(buf[34:36]))
	if channels <= 0 || sampleRate <= 0 || bitsPerSample <= 0 {
		return FallbackWAVDuration
	}

	dataBytes, ok := findDataChunk(buf)
	if !ok {
		return FallbackWAVDuration
	}

	byteRate := float64(sampleRate * channels * bitsPerSample / 8)
	ms := math.Ceil(float64(dataBytes) / byteRate * 1000)
	return time.Duration(ms) * time.Millisecond
}

// findDataChunk walks the RIFF sub-chunks looking for "data". Recorders
// occasionally emit extra chunks (LIST, fact) before it.
func findDataChunk(buf []byte) (int, bool) {
	offset := 12
	for offset+8 <= len(buf) {
		id := string(buf[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(buf[offset+4 : offset+8]))
		if id == "data" {
			return size, true
		}
		if size < 0 {
			return 0, false
		}
		// Chunks are word-aligned
		offset += 8 + size + (size & 1)
	}
	return 0, false
}

// GenerateTone synthesizes a PCM16 mono sine tone, framed as a WAV file.
// Used for the connection beep played as soon as call media is up.
func GenerateTone(frequency float64, duration time.Duration, sampleRate int, amplitude float64) []byte {
	samples := int(float64(sampleRate) * duration.Seconds())
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		sample := math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)) * amplitude * 32767
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(math.Round(sample))))
	}
	return BuildWAVFile(pcm, sampleRate, 1, 16)
}

// BuildSilence returns a WAV file of PCM16 silence, used to prime a
// playback port before real audio arrives.
func BuildSilence(duration time.Duration, sampleRate int) []byte {
	samples := int(float64(sampleRate) * duration.Seconds())
	return BuildWAVFile(make([]byte, samples*2), sampleRate, 1, 16)
}
