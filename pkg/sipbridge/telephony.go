package sipbridge

// Telephony collaborator contract. The SIP stack itself (answering,
// registration, RTP) lives outside this module; the bridge only consumes
// the surface below, so any runtime providing it, or a test double, can
// drive the controller.

// AudioSink is anything call media can be transmitted to: a recorder,
// another port, or a loopback in tests.
type AudioSink interface{}

// MediaStream represents one audio stream of an active call.
type MediaStream interface {
	// StartTransmitTo wires this stream's audio into the given sink.
	StartTransmitTo(sink AudioSink) error
}

// Recorder captures caller audio into a WAV file that grows while the
// call is live. Path() is the file the capture poller watches.
type Recorder interface {
	Path() string
	Stop() error
}

// Player plays a WAV file into call media.
type Player interface {
	StartTransmitTo(stream MediaStream) error
	Stop() error
}

// MediaFactory creates recorders and players bound to the telephony
// runtime. Creation failures are isolated per resource: one failed
// player must not take down the rest of the session.
type MediaFactory interface {
	CreateRecorder(path string) (Recorder, error)
	CreatePlayer(path string, loop bool) (Player, error)
}

// CallEventConsumer is the fixed event surface the telephony layer drives.
// The controller implements it; state strings are normalized through
// ParseCallState.
type CallEventConsumer interface {
	OnCallState(callID string, state string)
	OnCallMedia(callID string, streams []MediaStream)
	OnDTMF(callID string, digit string)
}
