package sipbridge

import (
	"os"
	"sync"
)

// CallSession is the per-call bundle of bridge state: the recorder being
// polled, active playback handles, the AI client and its poller, and the
// conversation history. All fields start empty; the lifecycle controller
// fills them in as the call progresses.
type CallSession struct {
	CallID       string
	State        CallState
	Conversation *ConversationLog

	recorder      Recorder
	recordingPath string
	media         MediaStream
	mediaAttached bool

	client    *RealtimeClient
	poller    *CapturePoller
	assembler *ResponseAssembler

	players       []Player
	playbackFiles []string

	greetingSeq *playbackSequence

	mu sync.Mutex
}

func newCallSession(callID string) *CallSession {
	return &CallSession{
		CallID:       callID,
		State:        CallRinging,
		Conversation: NewConversationLog(),
	}
}

// attachMedia records the first media stream and reports whether this was
// the first attachment. Repeat firings (media renegotiation) return false
// so playback is not restarted and the recorder not recreated.
func (s *CallSession) attachMedia(media MediaStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mediaAttached {
		return false
	}
	s.media = media
	s.mediaAttached = true
	return true
}

func (s *CallSession) Media() MediaStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

func (s *CallSession) setRecorder(rec Recorder, path string) {
	s.mu.Lock()
	s.recorder = rec
	s.recordingPath = path
	s.mu.Unlock()
}

func (s *CallSession) Client() *RealtimeClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *CallSession) setPoller(poller *CapturePoller) {
	s.mu.Lock()
	s.poller = poller
	s.mu.Unlock()
}

func (s *CallSession) setState(state CallState) {
	s.mu.Lock()
	s.State = state
	s.mu.Unlock()
}

func (s *CallSession) CurrentState() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

// addPlayer registers an active playback handle and the transient file
// behind it.
func (s *CallSession) addPlayer(p Player, path string) {
	s.mu.Lock()
	s.players = append(s.players, p)
	if path != "" {
		s.playbackFiles = append(s.playbackFiles, path)
	}
	s.mu.Unlock()
}

// removePlayer drops a handle after natural completion. The player has
// already been stopped by its scheduled callback.
func (s *CallSession) removePlayer(p Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.players {
		if candidate == p {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return
		}
	}
}

func (s *CallSession) playerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// SessionRegistry maps active calls to their sessions and owns creation
// and teardown. It is the only shared mutable structure in the bridge;
// the lock is never held across blocking I/O.
type SessionRegistry struct {
	sessions map[string]*CallSession
	logger   *BridgeLogger
	mu       sync.Mutex
}

func NewSessionRegistry(logger *BridgeLogger) *SessionRegistry {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &SessionRegistry{
		sessions: make(map[string]*CallSession),
		logger:   logger.WithComponent("registry"),
	}
}

// GetOrCreate returns the existing session for the call or constructs a
// fresh one with all fields empty.
func (r *SessionRegistry) GetOrCreate(callID string) *CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[callID]; ok {
		return session
	}
	session := newCallSession(callID)
	r.sessions[callID] = session
	r.logger.WithCall(callID).Info("Call session created")
	return session
}

func (r *SessionRegistry) Get(callID string) (*CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[callID]
	return session, ok
}

// Live reports whether the call still has a registered session. Scheduled
// one-shot callbacks check this before touching torn-down state.
func (r *SessionRegistry) Live(callID string) bool {
	_, ok := r.Get(callID)
	return ok
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Teardown releases everything a session owns, in order: poller,
// recorder, AI client, playback handles, then the registry entry. Each
// stop is isolated so one failure cannot block the others, and calling
// Teardown again for the same id is a no-op.
func (r *SessionRegistry) Teardown(callID string) {
	r.mu.Lock()
	session, ok := r.sessions[callID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, callID)
	r.mu.Unlock()

	log := r.logger.WithCall(callID)

	session.mu.Lock()
	poller := session.poller
	recorder := session.recorder
	recordingPath := session.recordingPath
	client := session.client
	players := session.players
	files := session.playbackFiles
	seq := session.greetingSeq
	session.players = nil
	session.playbackFiles = nil
	session.State = CallDisconnected
	session.mu.Unlock()

	if seq != nil {
		seq.invalidate()
	}

	if poller != nil {
		poller.Stop()
	}

	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			log.WithError(err).Warn("Recorder did not stop cleanly")
		}
	}

	if client != nil {
		client.Disconnect()
	}

	for _, player := range players {
		if err := player.Stop(); err != nil {
			log.WithError(err).Warn("Player did not stop cleanly")
		}
	}

	// Transient artifacts: best-effort cleanup, failures swallowed.
	if recordingPath != "" {
		_ = os.Remove(recordingPath)
	}
	for _, file := range files {
		_ = os.Remove(file)
	}

	log.Infof("Call session removed; conversation: %s", session.Conversation.Summary())
}

// TeardownAll releases every active session, used on process shutdown.
func (r *SessionRegistry) TeardownAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Teardown(id)
	}
}
