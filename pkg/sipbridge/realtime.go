package sipbridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// RealtimeClient manages one persistent connection to the streaming AI
// backend: connect and configure, append caller audio, receive the
// incremental event stream and re-emit it as normalized RealtimeEvents.
//
// A client is single-use: once disconnected it stays disconnected, and
// reconnection policy belongs to the owner (a new client per attempt).
type RealtimeClient struct {
	config             *BridgeConfig
	conn               *websocket.Conn
	state              ConnectionState
	sessionID          string
	bytesSinceCommit   int64
	eventHandlers      []EventHandler
	connectionHandlers []ConnectionHandler
	errorHandlers      []ErrorHandler
	logger             *BridgeLogger
	ctx                context.Context
	cancel             context.CancelFunc
	mu                 sync.Mutex
}

func NewRealtimeClient(config *BridgeConfig, logger *BridgeLogger) *RealtimeClient {
	if config == nil {
		config = NewBridgeConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &RealtimeClient{
		config: config,
		state:  Disconnected,
		logger: logger.WithComponent("realtime"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect opens the WebSocket, authenticates, and sends the session
// configuration. It returns once the connection is open and the config
// message has been written; server acknowledgment is not awaited. The
// handshake is bounded by ConnectTimeout independent of any transport
// default, so a stalled handshake cannot block call teardown.
func (rc *RealtimeClient) Connect() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state != Disconnected {
		return NewConnectionError(fmt.Sprintf("connect in state %s", rc.state))
	}
	rc.setState(Connecting)

	endpoint, err := rc.buildEndpoint()
	if err != nil {
		rc.setState(Disconnected)
		return WrapError(err, ErrCodeConnectionFailed)
	}

	header := make(http.Header)
	token := rc.config.APIKey
	if rc.config.UseGatewayToken {
		gwToken, tokenErr := GenerateGatewayToken(rc.config.APIKey, rc.sessionID)
		if tokenErr != nil {
			rc.setState(Disconnected)
			return tokenErr
		}
		token = gwToken.Token
	}
	header.Set("Authorization", "Bearer "+token)
	header.Set("OpenAI-Beta", "realtime=v1")
	for k, v := range rc.config.Headers {
		header.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: rc.config.ConnectTimeout}
	ctx, cancel := context.WithTimeout(rc.ctx, rc.config.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		rc.setState(Disconnected)
		if rc.ctx.Err() != nil {
			return NewConnectionError("realtime connect aborted by disconnect")
		}
		if ctx.Err() != nil {
			return NewTimeoutError(fmt.Sprintf("realtime connect timed out after %s", rc.config.ConnectTimeout))
		}
		return WrapError(err, ErrCodeConnectionFailed)
	}

	rc.conn = conn

	// Connect resolves only once the configuration has been sent; a
	// connection that rejects it is useless to the session.
	if err := rc.sendSessionUpdate(); err != nil {
		_ = conn.Close()
		rc.conn = nil
		rc.setState(Disconnected)
		return WrapError(err, ErrCodeWebSocket)
	}

	rc.setState(Connected)
	rc.logger.LogConnectionEvent("connected", Connected, map[string]interface{}{
		"endpoint": rc.config.RealtimeEndpoint,
		"model":    rc.config.Model,
	})

	go rc.readLoop(conn)
	return nil
}

func (rc *RealtimeClient) buildEndpoint() (string, error) {
	u, err := url.Parse(rc.config.RealtimeEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", rc.config.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sendSessionUpdate configures response modality, behavioral instructions
// and server-side turn detection. Called with rc.mu held.
func (rc *RealtimeClient) sendSessionUpdate() error {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionPayload{
			Modalities:              []string{"text", "audio"},
			Instructions:            rc.config.Instructions,
			Voice:                   rc.config.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionPayload{Model: "whisper-1"},
			TurnDetection: &turnDetectionPayload{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 1000,
			},
		},
	}
	if rc.config.CommitOnSilence {
		// Local silence detection owns utterance boundaries instead.
		msg.Session.TurnDetection = nil
	}
	return rc.conn.WriteJSON(msg)
}

func (rc *RealtimeClient) readLoop(conn *websocket.Conn) {
	defer func() {
		rc.mu.Lock()
		if rc.state == Connected {
			rc.setState(Disconnected)
		}
		rc.mu.Unlock()
	}()

	for {
		select {
		case <-rc.ctx.Done():
			return
		default:
		}

		var event serverEvent
		if err := conn.ReadJSON(&event); err != nil {
			if rc.ctx.Err() == nil {
				rc.logger.WithError(err).Debug("Realtime read loop ended")
				rc.handleError(WrapError(err, ErrCodeWebSocket))
			}
			return
		}

		if rc.config.DebugWebsocket {
			rc.logger.Debugf("Realtime message: %s", event.Type)
		}

		rc.normalize(&event)
	}
}

// normalize maps raw protocol messages onto the reduced domain event set.
// Message types outside the set are observed but not re-emitted. Event
// handlers run on the read loop goroutine, so audio deltas reach the
// owner in receipt order.
func (rc *RealtimeClient) normalize(event *serverEvent) {
	switch event.Type {
	case "session.created":
		if event.Session != nil {
			rc.mu.Lock()
			rc.sessionID = event.Session.ID
			rc.mu.Unlock()
			rc.emit(RealtimeEvent{Type: EventSessionCreated, SessionID: event.Session.ID})
		}
	case "response.created", "response.started":
		rc.emit(RealtimeEvent{Type: EventResponseStarted})
	case "response.audio.delta", "response.output_audio.delta":
		if event.Delta == "" {
			rc.logger.Debug("Audio delta with no data")
			return
		}
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			rc.handleError(WrapError(err, ErrCodeAPIError))
			return
		}
		rc.emit(RealtimeEvent{Type: EventAudioDelta, Audio: audio})
	case "response.text.delta", "response.output_audio_transcript.delta":
		if event.Delta != "" {
			rc.emit(RealtimeEvent{Type: EventTextDelta, Text: event.Delta})
		}
	case "input_audio_buffer.speech_started":
		rc.emit(RealtimeEvent{Type: EventSpeechStarted})
	case "input_audio_buffer.speech_stopped":
		rc.emit(RealtimeEvent{Type: EventSpeechStopped})
	case "response.done":
		rc.emit(RealtimeEvent{Type: EventResponseDone})
	case "error":
		detail := event.Error.String()
		rc.logger.Errorf("Realtime API error: %s", detail)
		rc.emit(RealtimeEvent{Type: EventAPIError, Detail: detail})
	default:
		// Forward-compatible: session.updated, rate_limits.updated,
		// conversation.item.created and friends are log-only.
		if rc.config.DebugWebsocket {
			rc.logger.Debugf("Unhandled realtime message type: %s", event.Type)
		}
	}
}

// SendAudio base64-encodes the PCM buffer and appends it to the
// server-side input buffer. At-most-once: a chunk that cannot be written
// is dropped, never queued locally. Returns false when not connected.
func (rc *RealtimeClient) SendAudio(pcm []byte) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state != Connected || len(pcm) == 0 {
		return false
	}

	msg := audioAppendMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
	if err := rc.conn.WriteJSON(msg); err != nil {
		rc.handleError(WrapError(err, ErrCodeWebSocket))
		return false
	}

	rc.bytesSinceCommit += int64(len(pcm))
	return true
}

// CommitAudio signals the server to treat the appended audio as a
// complete utterance boundary. No-op returning false if not connected.
func (rc *RealtimeClient) CommitAudio() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state != Connected {
		return false
	}

	if err := rc.conn.WriteJSON(audioCommitMessage{Type: "input_audio_buffer.commit"}); err != nil {
		rc.handleError(WrapError(err, ErrCodeWebSocket))
		return false
	}

	rc.logger.Debugf("Committed %d bytes of caller audio", rc.bytesSinceCommit)
	rc.bytesSinceCommit = 0
	return true
}

// SendText creates a user message item and requests a spoken response.
// Used to ask the AI for the opening greeting.
func (rc *RealtimeClient) SendText(text string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state != Connected {
		return false
	}

	item := itemCreateMessage{
		Type: "conversation.item.create",
		Item: itemPayload{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	}
	if err := rc.conn.WriteJSON(item); err != nil {
		rc.handleError(WrapError(err, ErrCodeWebSocket))
		return false
	}

	resp := responseCreateMessage{
		Type:     "response.create",
		Response: responsePayload{Modalities: []string{"text", "audio"}},
	}
	if err := rc.conn.WriteJSON(resp); err != nil {
		rc.handleError(WrapError(err, ErrCodeWebSocket))
		return false
	}
	return true
}

// Disconnect closes the transport. Safe to call repeatedly; the first
// call wins and later ones are no-ops.
func (rc *RealtimeClient) Disconnect() {
	// Cancel before taking the lock: an in-flight Connect holds the
	// mutex across its dial, and the cancel is what aborts that dial. A
	// stalled handshake must not hold up call teardown.
	rc.cancel()

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.conn != nil {
		_ = rc.conn.Close()
		rc.conn = nil
	}

	if rc.state != Disconnected {
		rc.setState(Disconnected)
		rc.logger.LogConnectionEvent("disconnected", Disconnected, nil)
	}
}

// setState must be called with rc.mu held.
func (rc *RealtimeClient) setState(state ConnectionState) {
	if rc.state == state {
		return
	}
	rc.state = state
	for _, handler := range rc.connectionHandlers {
		go handler(state)
	}
}

func (rc *RealtimeClient) emit(event RealtimeEvent) {
	rc.mu.Lock()
	handlers := rc.eventHandlers
	rc.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (rc *RealtimeClient) handleError(err *BridgeError) {
	rc.logger.LogBridgeError(err)
	for _, handler := range rc.errorHandlers {
		go handler(err)
	}
}

func (rc *RealtimeClient) AddEventHandler(handler EventHandler) {
	rc.mu.Lock()
	rc.eventHandlers = append(rc.eventHandlers, handler)
	rc.mu.Unlock()
}

func (rc *RealtimeClient) AddConnectionHandler(handler ConnectionHandler) {
	rc.mu.Lock()
	rc.connectionHandlers = append(rc.connectionHandlers, handler)
	rc.mu.Unlock()
}

func (rc *RealtimeClient) AddErrorHandler(handler ErrorHandler) {
	rc.mu.Lock()
	rc.errorHandlers = append(rc.errorHandlers, handler)
	rc.mu.Unlock()
}

func (rc *RealtimeClient) State() ConnectionState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *RealtimeClient) IsConnected() bool {
	return rc.State() == Connected
}

// SessionID returns the server-assigned session id, empty until the
// first session.created event arrives.
func (rc *RealtimeClient) SessionID() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sessionID
}

// BytesSinceCommit reports audio bytes appended since the last commit.
func (rc *RealtimeClient) BytesSinceCommit() int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.bytesSinceCommit
}
