package sipbridge

import (
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// AudioSender is the slice of the realtime client the poller needs.
type AudioSender interface {
	SendAudio(pcm []byte) bool
	CommitAudio() bool
}

// CapturePoller emulates a live caller-audio stream over a collaborator
// that only exposes a growing recording file: each tick it reads the
// bytes appended since the last one, classifies them with the peak VAD,
// and forwards speech to the AI session. The cursor starts just past the
// WAV header so header bytes are never misread as audio.
//
// Local VAD exists to avoid streaming silence. Utterance boundaries
// belong to server-side turn detection unless CommitOnSilence is set, in
// which case the poller commits once per speech-to-silence transition.
type CapturePoller struct {
	path            string
	sender          AudioSender
	interval        time.Duration
	threshold       int
	silenceWindow   time.Duration
	commitOnSilence bool

	cursor    int64
	speaking  bool
	lastVoice time.Time

	logger   *BridgeLogger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	mu       sync.Mutex
}

func NewCapturePoller(path string, sender AudioSender, config *BridgeConfig, logger *BridgeLogger) *CapturePoller {
	if config == nil {
		config = NewBridgeConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &CapturePoller{
		path:            path,
		sender:          sender,
		interval:        config.PollInterval,
		threshold:       config.VADThreshold,
		silenceWindow:   config.SilenceWindow,
		commitOnSilence: config.CommitOnSilence,
		cursor:          WAVHeaderSize,
		logger:          logger.WithComponent("capture"),
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start launches the periodic task. Call Stop exactly once at teardown.
func (cp *CapturePoller) Start() {
	go cp.run()
	cp.logger.Infof("Audio capture monitoring started for %s", cp.path)
}

func (cp *CapturePoller) run() {
	ticker := time.NewTicker(cp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.ctx.Done():
			return
		case <-ticker.C:
			cp.tick()
		}
	}
}

// Stop cancels the periodic task. Idempotent; an in-flight tick finishes
// but its result is discarded before reaching the sender.
func (cp *CapturePoller) Stop() {
	cp.stopOnce.Do(func() {
		cp.cancel()
		cp.logger.Debug("Audio capture monitoring stopped")
	})
}

// tick performs one poll step: stat, read the new byte range, classify,
// forward on speech, and advance the cursor regardless of classification.
func (cp *CapturePoller) tick() {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	info, err := os.Stat(cp.path)
	if err != nil {
		// Recorder may not have created the file yet.
		return
	}

	size := info.Size()
	if size <= cp.cursor {
		return
	}

	chunk, err := cp.readRange(cp.cursor, size)
	if err != nil {
		cp.logger.WithError(err).Debug("Failed to read new audio range")
		return
	}

	// The owning session may have been torn down during the read.
	if cp.ctx.Err() != nil {
		return
	}

	if HasVoice(chunk, cp.threshold) {
		cp.lastVoice = cp.now()
		if !cp.speaking {
			cp.speaking = true
			cp.logger.LogAudioEvent("speech_start", map[string]interface{}{"bytes": len(chunk)})
		}
		cp.sender.SendAudio(chunk)
	} else if cp.speaking && cp.now().Sub(cp.lastVoice) >= cp.silenceWindow {
		cp.speaking = false
		cp.logger.LogAudioEvent("speech_end", map[string]interface{}{
			"silence": cp.now().Sub(cp.lastVoice).String(),
		})
		if cp.commitOnSilence {
			cp.sender.CommitAudio()
		}
	}

	cp.cursor = size
}

func (cp *CapturePoller) readRange(from, to int64) ([]byte, error) {
	f, err := os.Open(cp.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(from, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, to-from)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Cursor reports the current read offset, for diagnostics and tests.
func (cp *CapturePoller) Cursor() int64 {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.cursor
}

// Speaking reports whether the poller currently classifies the caller as
// speaking.
func (cp *CapturePoller) Speaking() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.speaking
}
