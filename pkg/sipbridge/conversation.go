package sipbridge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ConversationLog records the (role, text) turns of one call. Append-only
// while the call is live; read back for the teardown summary.
type ConversationLog struct {
	turns []Turn
	mu    sync.Mutex
}

func NewConversationLog() *ConversationLog {
	return &ConversationLog{turns: []Turn{}}
}

func (cl *ConversationLog) Append(role, text string) {
	if text == "" {
		return
	}
	cl.mu.Lock()
	cl.turns = append(cl.turns, Turn{Role: role, Text: text, At: time.Now()})
	cl.mu.Unlock()
}

// AppendDelta extends the last turn if it belongs to the same role,
// otherwise starts a new one. Streaming text deltas arrive word by word.
func (cl *ConversationLog) AppendDelta(role, delta string) {
	if delta == "" {
		return
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if n := len(cl.turns); n > 0 && cl.turns[n-1].Role == role {
		cl.turns[n-1].Text += delta
		return
	}
	cl.turns = append(cl.turns, Turn{Role: role, Text: delta, At: time.Now()})
}

// Turns returns a copy to avoid races with appenders.
func (cl *ConversationLog) Turns() []Turn {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]Turn, len(cl.turns))
	copy(out, cl.turns)
	return out
}

func (cl *ConversationLog) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.turns)
}

func (cl *ConversationLog) LastTurn() (Turn, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if len(cl.turns) == 0 {
		return Turn{}, false
	}
	return cl.turns[len(cl.turns)-1], true
}

// Summary renders a compact transcript for the teardown log.
func (cl *ConversationLog) Summary() string {
	turns := cl.Turns()
	if len(turns) == 0 {
		return "no conversation recorded"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d turns", len(turns))
	for _, turn := range turns {
		text := turn.Text
		if len(text) > 60 {
			text = text[:60] + "..."
		}
		fmt.Fprintf(&sb, "; %s: %s", turn.Role, text)
	}
	return sb.String()
}

// Export writes the full history as JSON, for diagnostics.
func (cl *ConversationLog) Export(path string) error {
	cl.mu.Lock()
	data, err := json.MarshalIndent(cl.turns, "", "  ")
	cl.mu.Unlock()
	if err != nil {
		return WrapError(err, ErrCodeUnknown)
	}
	return os.WriteFile(path, data, 0644)
}
