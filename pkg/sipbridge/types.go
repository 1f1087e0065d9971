package sipbridge

import "time"

// ConnectionState enum for the realtime AI client
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// CallState enum mirroring the telephony stack's call lifecycle
type CallState string

const (
	CallRinging      CallState = "ringing"
	CallEarly        CallState = "early"
	CallConfirmed    CallState = "confirmed"
	CallDisconnected CallState = "disconnected"
)

// ParseCallState maps the state strings delivered by the telephony layer
// (upper- or lower-case, INCOMING treated as ringing) onto CallState.
func ParseCallState(s string) CallState {
	switch normalizeState(s) {
	case "ringing", "incoming", "calling":
		return CallRinging
	case "early":
		return CallEarly
	case "confirmed":
		return CallConfirmed
	case "disconnected", "disconnctd":
		return CallDisconnected
	}
	return CallState(normalizeState(s))
}

func normalizeState(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// EventType identifies a normalized domain event re-emitted by the
// RealtimeClient. Raw protocol message types outside this set are
// observed but never re-emitted.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventResponseStarted EventType = "response_started"
	EventAudioDelta      EventType = "audio_delta"
	EventTextDelta       EventType = "text_delta"
	EventSpeechStarted   EventType = "speech_started"
	EventSpeechStopped   EventType = "speech_stopped"
	EventResponseDone    EventType = "response_done"
	EventAPIError        EventType = "api_error"
)

// RealtimeEvent is the normalized event surface of the AI session.
type RealtimeEvent struct {
	Type      EventType
	Audio     []byte // set for audio_delta
	Text      string // set for text_delta
	SessionID string // set for session_created
	Detail    string // set for api_error
}

// Handler types
type EventHandler func(RealtimeEvent)
type ConnectionHandler func(ConnectionState)
type ErrorHandler func(*BridgeError)

// Turn is one complete utterance in the conversation, caller or AI side.
type Turn struct {
	Role string
	Text string
	At   time.Time
}

// BridgeError carries a machine-readable code next to the message.
type BridgeError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func (e *BridgeError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error {
	return e.err
}

func NewBridgeError(message, code string) *BridgeError {
	return &BridgeError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
