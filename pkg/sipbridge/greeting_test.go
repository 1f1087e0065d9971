package sipbridge

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreetingAssetsSynthesizesBeep(t *testing.T) {
	config := testConfig(t)

	steps, needGreeting := greetingAssets(config, testLogger())

	require.Len(t, steps, 1)
	assert.True(t, needGreeting, "no cached greeting means the AI must generate one")
	assert.Equal(t, beepFileName, filepath.Base(steps[0].path))

	wav, err := os.ReadFile(steps[0].path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, ReadWAVDuration(wav))
	assert.Equal(t, 250*time.Millisecond+config.PlaybackGrace, steps[0].duration)
}

func TestGreetingAssetsUsesCachedGreeting(t *testing.T) {
	config := testConfig(t)

	greeting := GenerateTone(300, 100*time.Millisecond, config.AISampleRate, 0.4)
	cachePath := filepath.Join(config.ScratchDir, greetingCacheFileName)
	require.NoError(t, os.WriteFile(cachePath, greeting, 0644))

	steps, needGreeting := greetingAssets(config, testLogger())

	require.Len(t, steps, 2)
	assert.False(t, needGreeting)
	assert.Equal(t, cachePath, steps[1].path)
	assert.Equal(t, 100*time.Millisecond+config.PlaybackGrace, steps[1].duration)
}

func TestStepDurationCapped(t *testing.T) {
	config := testConfig(t)

	// A header claiming 100 MB of data would budget nearly an hour.
	path := filepath.Join(config.ScratchDir, "huge.wav")
	require.NoError(t, os.WriteFile(path, BuildWAVHeader(100_000_000, 16000, 1, 16), 0644))

	assert.Equal(t, maxStepDuration, stepDuration(path, config))
}

func TestStepDurationMissingFile(t *testing.T) {
	config := testConfig(t)

	d := stepDuration(filepath.Join(config.ScratchDir, "gone.wav"), config)
	assert.Equal(t, FallbackWAVDuration+config.PlaybackGrace, d)
}

func TestPlaybackSequenceRunsAllSteps(t *testing.T) {
	config := testConfig(t)
	registry := NewSessionRegistry(testLogger())
	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})
	factory := &fakeFactory{}

	steps := []playbackStep{
		{path: filepath.Join(config.ScratchDir, "a.wav"), duration: 10 * time.Millisecond},
		{path: filepath.Join(config.ScratchDir, "b.wav"), duration: 10 * time.Millisecond},
	}

	var done atomic.Int32
	seq := newPlaybackSequence(session, factory, steps, func() { done.Add(1) }, testLogger())
	seq.start()

	require.Eventually(t, func() bool {
		return done.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	players := factory.createdPlayers()
	require.Len(t, players, 2)
	for _, player := range players {
		assert.True(t, player.wasStopped())
	}
	assert.Zero(t, session.playerCount())
	assert.False(t, seq.active())
}

func TestPlaybackSequenceSkipsFailedStep(t *testing.T) {
	config := testConfig(t)
	registry := NewSessionRegistry(testLogger())
	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})
	factory := &fakeFactory{failNextPlayers: 1}

	steps := []playbackStep{
		{path: filepath.Join(config.ScratchDir, "bad.wav"), duration: 10 * time.Millisecond},
		{path: filepath.Join(config.ScratchDir, "good.wav"), duration: 10 * time.Millisecond},
	}

	var done atomic.Int32
	seq := newPlaybackSequence(session, factory, steps, func() { done.Add(1) }, testLogger())
	seq.start()

	require.Eventually(t, func() bool {
		return done.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, factory.createdPlayers(), 1, "only the good step reaches a player")
}

func TestPlaybackSequenceInvalidate(t *testing.T) {
	config := testConfig(t)
	registry := NewSessionRegistry(testLogger())
	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})
	factory := &fakeFactory{}

	steps := []playbackStep{
		{path: filepath.Join(config.ScratchDir, "a.wav"), duration: 50 * time.Millisecond},
	}

	var done atomic.Int32
	seq := newPlaybackSequence(session, factory, steps, func() { done.Add(1) }, testLogger())
	seq.start()
	seq.invalidate()

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, done.Load(), "an invalidated sequence never completes")
	assert.False(t, seq.active())
}

func TestPlaybackSequenceEmptySteps(t *testing.T) {
	registry := NewSessionRegistry(testLogger())
	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})

	var done atomic.Int32
	seq := newPlaybackSequence(session, &fakeFactory{}, nil, func() { done.Add(1) }, testLogger())
	seq.start()

	require.Eventually(t, func() bool {
		return done.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, seq.active())
}
