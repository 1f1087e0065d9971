package sipbridge

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"
)

// testConfig returns a config tuned for fast tests: tiny playback grace,
// short poll interval, scratch dir isolated per test.
func testConfig(t *testing.T) *BridgeConfig {
	t.Helper()
	config := NewBridgeConfig()
	config.APIKey = "sk-test-key-1234567890"
	config.ScratchDir = t.TempDir()
	config.PlaybackGrace = 20 * time.Millisecond
	config.PollInterval = 5 * time.Millisecond
	config.SilenceWindow = 100 * time.Millisecond
	config.ConnectTimeout = 2 * time.Second
	config.UseGatewayToken = false
	config.CommitOnSilence = false
	return config
}

func testLogger() *BridgeLogger {
	return NewBridgeLogger(&LogConfig{Level: ErrorLevel, Output: io.Discard})
}

type fakeMedia struct {
	mu    sync.Mutex
	sinks []AudioSink
}

func (m *fakeMedia) StartTransmitTo(sink AudioSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
	return nil
}

func (m *fakeMedia) sinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

type fakeRecorder struct {
	mu        sync.Mutex
	path      string
	stopCount int
}

func (r *fakeRecorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCount++
	return nil
}

func (r *fakeRecorder) stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCount
}

type fakePlayer struct {
	mu      sync.Mutex
	path    string
	started bool
	stopped bool
}

func (p *fakePlayer) StartTransmitTo(stream MediaStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *fakePlayer) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeFactory hands out fakeRecorder/fakePlayer instances and remembers
// every one it created. failNextPlayers makes the next N CreatePlayer
// calls fail.
type fakeFactory struct {
	mu              sync.Mutex
	recorders       []*fakeRecorder
	players         []*fakePlayer
	recorderErr     error
	failNextPlayers int
}

func (f *fakeFactory) CreateRecorder(path string) (Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recorderErr != nil {
		return nil, f.recorderErr
	}
	// Real recorders create the file immediately; mirror that.
	if err := os.WriteFile(path, BuildWAVHeader(0, 16000, 1, 16), 0644); err != nil {
		return nil, err
	}
	rec := &fakeRecorder{path: path}
	f.recorders = append(f.recorders, rec)
	return rec, nil
}

func (f *fakeFactory) CreatePlayer(path string, loop bool) (Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextPlayers > 0 {
		f.failNextPlayers--
		return nil, NewPlaybackError("player creation failed")
	}
	player := &fakePlayer{path: path}
	f.players = append(f.players, player)
	return player, nil
}

func (f *fakeFactory) recorderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}

func (f *fakeFactory) createdPlayers() []*fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakePlayer, len(f.players))
	copy(out, f.players)
	return out
}

// recordingSender captures everything a poller forwards to the AI side.
type recordingSender struct {
	mu      sync.Mutex
	sent    [][]byte
	commits int
}

func (s *recordingSender) SendAudio(pcm []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), pcm...))
	return true
}

func (s *recordingSender) CommitAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return true
}

func (s *recordingSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) totalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, chunk := range s.sent {
		total += len(chunk)
	}
	return total
}

func (s *recordingSender) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
