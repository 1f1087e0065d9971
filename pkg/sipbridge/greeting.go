package sipbridge

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	beepFileName          = "connection_beep.wav"
	greetingCacheFileName = "ai_greeting_cached.wav"

	// maxStepDuration guards against a corrupt header inflating a
	// playback budget; the fallback duration handles missing ones.
	maxStepDuration = 15 * time.Second
)

// GreetingCachePath returns where the generated greeting audio is cached
// between calls.
func GreetingCachePath(config *BridgeConfig) string {
	return filepath.Join(config.ScratchDir, greetingCacheFileName)
}

// playbackStep is one file in a greeting sequence with its play budget.
type playbackStep struct {
	path     string
	duration time.Duration
}

// playbackSequence plays a finite list of files into call media, one
// after another, each step's continuation scheduled only after the prior
// step's timer fires. Cancellation is a single invalidate: stale timer
// callbacks see the flag and do nothing, so a torn-down session cannot
// be revived by a pending step.
type playbackSequence struct {
	steps   []playbackStep
	index   int
	session *CallSession
	factory MediaFactory
	onDone  func()
	logger  *BridgeLogger

	valid   bool
	current Player
	mu      sync.Mutex
}

func newPlaybackSequence(session *CallSession, factory MediaFactory, steps []playbackStep, onDone func(), logger *BridgeLogger) *playbackSequence {
	return &playbackSequence{
		steps:   steps,
		session: session,
		factory: factory,
		onDone:  onDone,
		logger:  logger.WithComponent("playback").WithCall(session.CallID),
		valid:   true,
	}
}

func (ps *playbackSequence) start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.playCurrentLocked()
}

// playCurrentLocked starts the step at the current index, or finishes the
// sequence when the list is exhausted. Called with ps.mu held.
func (ps *playbackSequence) playCurrentLocked() {
	if !ps.valid {
		return
	}

	if ps.index >= len(ps.steps) {
		ps.valid = false
		if ps.onDone != nil {
			done := ps.onDone
			go done()
		}
		return
	}

	step := ps.steps[ps.index]
	media := ps.session.Media()
	if media == nil {
		ps.logger.Error("No media stream for playback step")
		ps.index++
		ps.playCurrentLocked()
		return
	}

	player, err := ps.factory.CreatePlayer(step.path, false)
	if err != nil {
		// One failed file must not sink the rest of the sequence.
		ps.logger.WithError(err).Warnf("Skipping playback step %s", filepath.Base(step.path))
		ps.index++
		ps.playCurrentLocked()
		return
	}

	if err := player.StartTransmitTo(media); err != nil {
		ps.logger.WithError(err).Warnf("Skipping playback step %s", filepath.Base(step.path))
		_ = player.Stop()
		ps.index++
		ps.playCurrentLocked()
		return
	}

	ps.current = player
	ps.session.addPlayer(player, "")
	ps.logger.Infof("Playing %s (%s)", filepath.Base(step.path), step.duration)

	time.AfterFunc(step.duration, ps.advance)
}

// advance stops the finished step and moves to the next one. A sequence
// invalidated in the meantime leaves everything to session teardown.
func (ps *playbackSequence) advance() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.valid {
		return
	}

	if ps.current != nil {
		_ = ps.current.Stop()
		ps.session.removePlayer(ps.current)
		ps.current = nil
	}

	ps.index++
	ps.playCurrentLocked()
}

// invalidate cancels the sequence; pending timer callbacks become no-ops.
func (ps *playbackSequence) invalidate() {
	ps.mu.Lock()
	ps.valid = false
	ps.mu.Unlock()
}

func (ps *playbackSequence) active() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.valid
}

// greetingAssets prepares the files for the greeting sequence: the
// connection beep (synthesized once and cached in the scratch dir) and,
// when present, the cached AI greeting from an earlier call. Returns the
// steps plus whether the AI still needs to generate a greeting.
func greetingAssets(config *BridgeConfig, logger *BridgeLogger) ([]playbackStep, bool) {
	steps := []playbackStep{}

	beepPath := filepath.Join(config.ScratchDir, beepFileName)
	if _, err := os.Stat(beepPath); err != nil {
		tone := GenerateTone(440, 250*time.Millisecond, config.CallSampleRate, 0.6)
		if err := os.WriteFile(beepPath, tone, 0644); err != nil {
			logger.WithError(err).Warn("Could not create connection beep")
			beepPath = ""
		}
	}
	if beepPath != "" {
		steps = append(steps, playbackStep{path: beepPath, duration: stepDuration(beepPath, config)})
	}

	greetingPath := GreetingCachePath(config)
	if _, err := os.Stat(greetingPath); err == nil {
		steps = append(steps, playbackStep{path: greetingPath, duration: stepDuration(greetingPath, config)})
		return steps, false
	}

	return steps, true
}

// stepDuration estimates a file's play budget: WAV duration plus the
// configured grace, capped at maxStepDuration.
func stepDuration(path string, config *BridgeConfig) time.Duration {
	buf, err := os.ReadFile(path)
	if err != nil {
		return FallbackWAVDuration + config.PlaybackGrace
	}
	d := ReadWAVDuration(buf) + config.PlaybackGrace
	if d > maxStepDuration {
		d = maxStepDuration
	}
	return d
}
