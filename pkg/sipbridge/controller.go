package sipbridge

import (
	"path/filepath"

	"github.com/google/uuid"
)

// CallController reacts to call-state and media events from the telephony
// layer and drives the bridge in order: greeting playback and recorder
// attachment when media arrives, AI connect and capture polling once the
// greeting completes, registry teardown when the call ends.
type CallController struct {
	registry *SessionRegistry
	factory  MediaFactory
	config   *BridgeConfig
	logger   *BridgeLogger

	// connectFn lets tests substitute the AI connection step.
	connectFn func(session *CallSession, needGreeting bool)
}

func NewCallController(registry *SessionRegistry, factory MediaFactory, config *BridgeConfig, logger *BridgeLogger) *CallController {
	if config == nil {
		config = NewBridgeConfig()
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	c := &CallController{
		registry: registry,
		factory:  factory,
		config:   config,
		logger:   logger.WithComponent("controller"),
	}
	c.connectFn = c.connectAI
	return c
}

// OnCallState implements CallEventConsumer. DISCONNECTED is terminal and
// triggers teardown; a repeat DISCONNECTED for an already-removed call is
// a no-op inside the registry.
func (c *CallController) OnCallState(callID string, state string) {
	parsed := ParseCallState(state)
	log := c.logger.WithCall(callID)
	log.Infof("Call state changed: %s", parsed)

	switch parsed {
	case CallDisconnected:
		c.registry.Teardown(callID)
	case CallRinging, CallEarly, CallConfirmed:
		session := c.registry.GetOrCreate(callID)
		session.setState(parsed)
	default:
		log.Debugf("Ignoring unrecognized call state %q", state)
	}
}

// OnCallMedia implements CallEventConsumer. The first firing per session
// starts the greeting sequence and attaches the caller-audio recorder;
// repeats (media renegotiation) are ignored so playback is not restarted
// and the recorder not recreated.
func (c *CallController) OnCallMedia(callID string, streams []MediaStream) {
	if len(streams) == 0 {
		return
	}
	log := c.logger.WithCall(callID)

	session := c.registry.GetOrCreate(callID)
	if !session.attachMedia(streams[0]) {
		log.Debug("Media already attached, ignoring renegotiation")
		return
	}
	log.Infof("Media available (%d streams)", len(streams))

	// Recorder first, so caller audio exists before the AI needs it.
	// A recorder failure degrades the call (no AI hears the caller) but
	// must not block greeting playback.
	c.attachRecorder(session, streams[0])

	steps, needGreeting := greetingAssets(c.config, log)
	seq := newPlaybackSequence(session, c.factory, steps, func() {
		c.afterGreeting(callID, needGreeting)
	}, c.logger)

	session.mu.Lock()
	session.greetingSeq = seq
	session.mu.Unlock()

	seq.start()
}

// OnDTMF implements CallEventConsumer. Digits are observed only.
func (c *CallController) OnDTMF(callID string, digit string) {
	c.logger.WithCall(callID).Infof("DTMF digit received: %s", digit)
}

func (c *CallController) attachRecorder(session *CallSession, media MediaStream) {
	log := c.logger.WithCall(session.CallID)

	path := filepath.Join(c.config.ScratchDir, "caller_audio_"+uuid.NewString()+".wav")
	recorder, err := c.factory.CreateRecorder(path)
	if err != nil {
		log.WithError(err).Warn("Could not create caller-audio recorder")
		return
	}
	if err := media.StartTransmitTo(recorder); err != nil {
		log.WithError(err).Warn("Could not wire call audio to recorder")
		_ = recorder.Stop()
		return
	}

	session.setRecorder(recorder, path)
	log.Infof("Recording caller audio to %s", path)
}

// afterGreeting runs once the greeting sequence finishes: connect the AI
// session, then start streaming caller audio. The greeting must never be
// contaminated by simultaneous AI audio, hence the strict ordering.
func (c *CallController) afterGreeting(callID string, needGreeting bool) {
	session, ok := c.registry.Get(callID)
	if !ok {
		// Call ended while the greeting was still playing.
		return
	}
	c.connectFn(session, needGreeting)
}

func (c *CallController) connectAI(session *CallSession, needGreeting bool) {
	log := c.logger.WithCall(session.CallID)

	client := NewRealtimeClient(c.config, c.logger.WithCall(session.CallID))
	assembler := NewResponseAssembler(session, c.registry, c.factory, c.config, c.logger)

	client.AddEventHandler(assembler.HandleEvent)
	client.AddEventHandler(c.conversationHandler(session))

	if err := client.Connect(); err != nil {
		// Degraded but alive: the caller keeps the line, just without
		// AI speech, until the call ends normally.
		log.WithError(err).Error("AI connection failed, continuing call without AI")
		return
	}

	// Publish before checking liveness: a teardown that passes the check
	// finds the client on the session and disconnects it there; one that
	// already ran is handled below. Publishing after the check would let
	// a teardown between the two miss the client entirely.
	session.mu.Lock()
	session.client = client
	session.assembler = assembler
	session.mu.Unlock()

	if !c.registry.Live(session.CallID) {
		// Call ended while the AI connection was being established;
		// teardown saw no client, so release it here.
		log.Info("Call ended during AI connect, releasing AI session")
		client.Disconnect()
		return
	}

	if needGreeting {
		assembler.CaptureNextTurn(GreetingCachePath(c.config))
		if !client.SendText(c.config.GreetingText) {
			log.Warn("Could not request AI greeting")
		}
	}

	c.startPoller(session, client)
}

func (c *CallController) startPoller(session *CallSession, client *RealtimeClient) {
	log := c.logger.WithCall(session.CallID)

	session.mu.Lock()
	path := session.recordingPath
	alreadyPolling := session.poller != nil
	live := session.State != CallDisconnected
	session.mu.Unlock()

	if path == "" {
		log.Warn("No recording to poll, caller audio will not reach the AI")
		return
	}
	if alreadyPolling || !live {
		return
	}

	poller := NewCapturePoller(path, client, c.config, c.logger.WithCall(session.CallID))
	session.setPoller(poller)
	poller.Start()
}

// conversationHandler records AI text output and speech markers into the
// session history.
func (c *CallController) conversationHandler(session *CallSession) EventHandler {
	log := c.logger.WithCall(session.CallID)
	return func(event RealtimeEvent) {
		switch event.Type {
		case EventSessionCreated:
			log.Infof("AI session created: %s", event.SessionID)
		case EventTextDelta:
			session.Conversation.AppendDelta("assistant", event.Text)
		case EventSpeechStarted:
			log.Debug("Caller started speaking (server VAD)")
		case EventSpeechStopped:
			log.Debug("Caller stopped speaking (server VAD)")
		case EventAPIError:
			log.Errorf("AI error surfaced to call: %s", event.Detail)
		}
	}
}
