package sipbridge

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connectRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (cr *connectRecorder) record(session *CallSession, needGreeting bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.calls = append(cr.calls, needGreeting)
}

func (cr *connectRecorder) count() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.calls)
}

func (cr *connectRecorder) lastNeedGreeting() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.calls[len(cr.calls)-1]
}

func newTestController(t *testing.T) (*CallController, *SessionRegistry, *fakeFactory, *connectRecorder, *BridgeConfig) {
	t.Helper()
	config := testConfig(t)
	registry := NewSessionRegistry(testLogger())
	factory := &fakeFactory{}
	controller := NewCallController(registry, factory, config, testLogger())

	connects := &connectRecorder{}
	controller.connectFn = connects.record
	return controller, registry, factory, connects, config
}

func TestCallStateLifecycle(t *testing.T) {
	controller, registry, factory, connects, _ := newTestController(t)

	controller.OnCallState("call-1", "RINGING")
	require.Equal(t, 1, registry.Count())
	session, _ := registry.Get("call-1")
	assert.Equal(t, CallRinging, session.CurrentState())

	controller.OnCallState("call-1", "CONFIRMED")
	assert.Equal(t, CallConfirmed, session.CurrentState())

	// Hangup without media ever arriving: clean removal, nothing created.
	controller.OnCallState("call-1", "DISCONNCTD")
	assert.Zero(t, registry.Count())
	assert.Zero(t, factory.recorderCount())
	assert.Zero(t, connects.count())

	// Repeat disconnect is a no-op.
	controller.OnCallState("call-1", "DISCONNCTD")
}

func TestMediaEventStartsBridgeOnce(t *testing.T) {
	controller, registry, factory, connects, _ := newTestController(t)

	controller.OnCallState("call-1", "CONFIRMED")
	media := &fakeMedia{}
	controller.OnCallMedia("call-1", []MediaStream{media})
	controller.OnCallMedia("call-1", []MediaStream{media})

	assert.Equal(t, 1, factory.recorderCount(), "renegotiation must not recreate the recorder")

	session, ok := registry.Get("call-1")
	require.True(t, ok)
	recordingPath := func() string {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.recordingPath
	}()
	assert.NotEmpty(t, recordingPath)
	_, err := os.Stat(recordingPath)
	assert.NoError(t, err, "recorder target exists before the AI needs it")

	// The AI connects exactly once, after the greeting finishes.
	require.Eventually(t, func() bool {
		return connects.count() == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, connects.lastNeedGreeting(), "fresh scratch dir has no cached greeting")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, connects.count())
}

func TestMediaEventEmptyStreams(t *testing.T) {
	controller, registry, factory, _, _ := newTestController(t)

	controller.OnCallMedia("call-1", nil)
	controller.OnCallMedia("call-1", []MediaStream{})

	assert.Zero(t, registry.Count())
	assert.Zero(t, factory.recorderCount())
}

func TestCachedGreetingSkipsRequest(t *testing.T) {
	controller, _, factory, connects, config := newTestController(t)

	greeting := GenerateTone(300, 50*time.Millisecond, config.AISampleRate, 0.4)
	cachePath := filepath.Join(config.ScratchDir, greetingCacheFileName)
	require.NoError(t, os.WriteFile(cachePath, greeting, 0644))

	controller.OnCallState("call-1", "CONFIRMED")
	controller.OnCallMedia("call-1", []MediaStream{&fakeMedia{}})

	require.Eventually(t, func() bool {
		return connects.count() == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, connects.lastNeedGreeting())

	// Beep plus cached greeting both played.
	assert.Len(t, factory.createdPlayers(), 2)
}

func TestHangupDuringGreetingAbortsConnect(t *testing.T) {
	controller, registry, _, connects, _ := newTestController(t)

	controller.OnCallState("call-1", "CONFIRMED")
	controller.OnCallMedia("call-1", []MediaStream{&fakeMedia{}})
	controller.OnCallState("call-1", "DISCONNCTD")

	assert.Zero(t, registry.Count())

	// Wait well past the greeting budget; the AI must never be dialed.
	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, connects.count())
}

func TestRecorderFailureDoesNotBlockGreeting(t *testing.T) {
	controller, _, factory, connects, _ := newTestController(t)
	factory.recorderErr = NewBridgeError("no recorder", ErrCodeRecorder)

	controller.OnCallState("call-1", "CONFIRMED")
	controller.OnCallMedia("call-1", []MediaStream{&fakeMedia{}})

	require.Eventually(t, func() bool {
		return connects.count() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConversationHandlerRecordsText(t *testing.T) {
	controller, registry, _, _, _ := newTestController(t)
	session := registry.GetOrCreate("call-1")
	handler := controller.conversationHandler(session)

	handler(RealtimeEvent{Type: EventSessionCreated, SessionID: "sess_1"})
	handler(RealtimeEvent{Type: EventTextDelta, Text: "Hel"})
	handler(RealtimeEvent{Type: EventTextDelta, Text: "lo"})
	handler(RealtimeEvent{Type: EventSpeechStarted})
	handler(RealtimeEvent{Type: EventAPIError, Detail: "boom"})

	turn, ok := session.Conversation.LastTurn()
	require.True(t, ok)
	assert.Equal(t, "assistant", turn.Role)
	assert.Equal(t, "Hello", turn.Text)
	assert.Equal(t, 1, session.Conversation.Len())
}

func TestAIConnectFailureKeepsCallAlive(t *testing.T) {
	config := testConfig(t)
	config.RealtimeEndpoint = "ws://127.0.0.1:1" // nothing listens here
	config.ConnectTimeout = 200 * time.Millisecond

	registry := NewSessionRegistry(testLogger())
	controller := NewCallController(registry, &fakeFactory{}, config, testLogger())

	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})

	controller.connectAI(session, true)

	assert.True(t, registry.Live("call-1"), "a failed AI dial must not end the call")

	session.mu.Lock()
	client := session.client
	poller := session.poller
	session.mu.Unlock()

	assert.Nil(t, client, "a client that never connected is not published")
	assert.Nil(t, poller, "no caller audio is streamed to a dead session")
}

func TestConnectAIAfterHangupReleasesClient(t *testing.T) {
	messages := make(chan string, 8)
	server := newCollectingWSServer(t, messages)
	defer server.Close()

	config := testConfig(t)
	config.RealtimeEndpoint = wsEndpoint(server)

	registry := NewSessionRegistry(testLogger())
	controller := NewCallController(registry, &fakeFactory{}, config, testLogger())

	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})

	// Hangup wins the race: teardown runs before the AI connect step.
	registry.Teardown("call-1")
	controller.connectAI(session, false)

	session.mu.Lock()
	client := session.client
	poller := session.poller
	session.mu.Unlock()

	require.NotNil(t, client)
	assert.False(t, client.IsConnected(), "a connection for a torn-down call must be released")
	assert.Nil(t, poller)
}

func TestConnectAIRequestsGreetingAndStartsPolling(t *testing.T) {
	messages := make(chan string, 8)
	server := newCollectingWSServer(t, messages)
	defer server.Close()

	config := testConfig(t)
	config.RealtimeEndpoint = wsEndpoint(server)

	registry := NewSessionRegistry(testLogger())
	factory := &fakeFactory{}
	controller := NewCallController(registry, factory, config, testLogger())

	session := registry.GetOrCreate("call-1")
	session.attachMedia(&fakeMedia{})
	recorder, err := factory.CreateRecorder(filepath.Join(config.ScratchDir, "caller.wav"))
	require.NoError(t, err)
	session.setRecorder(recorder, filepath.Join(config.ScratchDir, "caller.wav"))

	controller.connectAI(session, true)
	defer registry.Teardown("call-1")

	next := func() string {
		select {
		case msg := <-messages:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("server never received the message")
			return ""
		}
	}
	assert.Equal(t, "session.update", next())
	assert.Equal(t, "conversation.item.create", next(), "greeting is requested when not cached")
	assert.Equal(t, "response.create", next())

	session.mu.Lock()
	poller := session.poller
	session.mu.Unlock()
	assert.NotNil(t, poller, "caller audio streaming starts with the AI session")
}

func TestOnDTMFObservesOnly(t *testing.T) {
	controller, registry, _, _, _ := newTestController(t)

	controller.OnDTMF("call-1", "5")

	assert.Zero(t, registry.Count(), "DTMF alone must not create a session")
}
