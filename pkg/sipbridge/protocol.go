package sipbridge

import "encoding/json"

// Wire types for the realtime AI protocol. Outbound messages are typed
// structs; inbound traffic is decoded into serverEvent and normalized in
// realtime.go.

type sessionUpdateMessage struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	Modalities              []string              `json:"modalities,omitempty"`
	Instructions            string                `json:"instructions,omitempty"`
	Voice                   string                `json:"voice,omitempty"`
	InputAudioFormat        string                `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                `json:"output_audio_format,omitempty"`
	InputAudioTranscription *transcriptionPayload `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetectionPayload `json:"turn_detection,omitempty"`
}

type transcriptionPayload struct {
	Model string `json:"model"`
}

type turnDetectionPayload struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type audioCommitMessage struct {
	Type string `json:"type"`
}

type itemCreateMessage struct {
	Type string      `json:"type"`
	Item itemPayload `json:"item"`
}

type itemPayload struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreateMessage struct {
	Type     string          `json:"type"`
	Response responsePayload `json:"response"`
}

type responsePayload struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// serverEvent is the superset of inbound message shapes we care about.
// Unknown fields and types are tolerated for forward compatibility.
type serverEvent struct {
	Type    string          `json:"type"`
	Delta   string          `json:"delta,omitempty"`
	Session *serverSession  `json:"session,omitempty"`
	Error   *serverError    `json:"error,omitempty"`
	Raw     json.RawMessage `json:"response,omitempty"`
}

type serverSession struct {
	ID string `json:"id"`
}

type serverError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *serverError) String() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
