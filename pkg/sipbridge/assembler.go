package sipbridge

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResponseAssembler turns the AI's streamed audio deltas into playable
// WAV files. Deltas are appended in receipt order; on response_done the
// accumulated turn is framed at the AI sample rate, handed to a fresh
// player on the call's media, and scheduled for removal after its
// estimated duration plus a grace margin. The buffer then resets for the
// next turn.
type ResponseAssembler struct {
	session  *CallSession
	registry *SessionRegistry
	factory  MediaFactory
	config   *BridgeConfig
	logger   *BridgeLogger

	buf          bytes.Buffer
	firstChunkAt time.Time

	// When set, the next completed turn is also written here. Used to
	// cache the generated greeting for subsequent calls.
	greetingCachePath string

	mu sync.Mutex
}

func NewResponseAssembler(session *CallSession, registry *SessionRegistry, factory MediaFactory, config *BridgeConfig, logger *BridgeLogger) *ResponseAssembler {
	if config == nil {
		config = NewBridgeConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &ResponseAssembler{
		session:  session,
		registry: registry,
		factory:  factory,
		config:   config,
		logger:   logger.WithComponent("assembler").WithCall(session.CallID),
	}
}

// HandleEvent is registered on the realtime client; only audio events
// are of interest here.
func (ra *ResponseAssembler) HandleEvent(event RealtimeEvent) {
	switch event.Type {
	case EventAudioDelta:
		ra.onAudioDelta(event.Audio)
	case EventResponseDone:
		ra.onResponseDone()
	}
}

// CaptureNextTurn asks the assembler to also persist the next completed
// turn's audio at the given path.
func (ra *ResponseAssembler) CaptureNextTurn(path string) {
	ra.mu.Lock()
	ra.greetingCachePath = path
	ra.mu.Unlock()
}

func (ra *ResponseAssembler) onAudioDelta(audio []byte) {
	if len(audio) == 0 {
		return
	}
	ra.mu.Lock()
	if ra.firstChunkAt.IsZero() {
		ra.firstChunkAt = time.Now()
	}
	ra.buf.Write(audio)
	ra.mu.Unlock()
}

func (ra *ResponseAssembler) onResponseDone() {
	ra.mu.Lock()
	pcm := make([]byte, ra.buf.Len())
	copy(pcm, ra.buf.Bytes())
	ra.buf.Reset()
	firstChunk := ra.firstChunkAt
	ra.firstChunkAt = time.Time{}
	cachePath := ra.greetingCachePath
	ra.greetingCachePath = ""
	ra.mu.Unlock()

	if len(pcm) == 0 {
		ra.logger.Debug("Response turn produced no audio")
		return
	}

	wav := BuildWAVFile(pcm, ra.config.AISampleRate, ra.config.Channels, ra.config.BitsPerSample)

	if cachePath != "" {
		if err := os.WriteFile(cachePath, wav, 0644); err != nil {
			ra.logger.WithError(err).Warn("Failed to cache greeting audio")
		} else {
			ra.logger.Infof("Greeting audio cached at %s", cachePath)
		}
	}

	path := filepath.Join(ra.config.ScratchDir, "ai_response_"+uuid.NewString()+".wav")
	if err := os.WriteFile(path, wav, 0644); err != nil {
		ra.logger.WithError(err).Error("Failed to write response audio file")
		return
	}

	if !ra.play(path, wav, firstChunk) {
		_ = os.Remove(path)
	}
}

func (ra *ResponseAssembler) play(path string, wav []byte, firstChunk time.Time) bool {
	media := ra.session.Media()
	if media == nil {
		ra.logger.Error("No media stream available for audio playback")
		return false
	}

	player, err := ra.factory.CreatePlayer(path, false)
	if err != nil {
		ra.logger.WithError(err).Error("Failed to create response player")
		return false
	}

	if err := player.StartTransmitTo(media); err != nil {
		ra.logger.WithError(err).Error("Failed to start response playback")
		_ = player.Stop()
		return false
	}

	ra.session.addPlayer(player, path)

	duration := ReadWAVDuration(wav)
	ra.logger.LogAudioEvent("response_playback", map[string]interface{}{
		"bytes":    len(wav) - WAVHeaderSize,
		"duration": duration.String(),
		"latency":  time.Since(firstChunk).String(),
	})

	callID := ra.session.CallID
	time.AfterFunc(duration+ra.config.PlaybackGrace, func() {
		// Stale-callback guard: the session may have been torn down
		// and already released this handle.
		if !ra.registry.Live(callID) {
			return
		}
		if err := player.Stop(); err != nil {
			ra.logger.WithError(err).Debug("Response player stop failed")
		}
		ra.session.removePlayer(player)
		_ = os.Remove(path)
	})

	return true
}

// BufferedBytes reports the size of the in-flight turn, for diagnostics.
func (ra *ResponseAssembler) BufferedBytes() int {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	return ra.buf.Len()
}
