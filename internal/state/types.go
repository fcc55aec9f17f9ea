package state

import "time"

// Turn roles. A transcript strictly alternates user and assistant turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the ordered message history for one session. It is the
// source of truth for the conversation: worker-local workflow caches are
// disposable, the transcript is not.
//
// CreatedAt is nil for a session that has never been persisted, matching
// the "absence is not an error" contract of Store.GetTranscript.
type Transcript struct {
	SessionID string     `json:"session_id"`
	Turns     []Turn     `json:"turns"`
	CreatedAt *time.Time `json:"created_at"`
}

// NewTranscript returns the empty transcript for a session.
func NewTranscript(sessionID string) *Transcript {
	return &Transcript{SessionID: sessionID, Turns: []Turn{}}
}

// Append adds a turn with the current timestamp, stamping CreatedAt on the
// first append. Ordering is append-only; callers never reorder Turns.
func (t *Transcript) Append(role, content string) {
	now := time.Now().UTC()
	if t.CreatedAt == nil {
		t.CreatedAt = &now
	}
	t.Turns = append(t.Turns, Turn{Role: role, Content: content, Timestamp: now})
}

// AffinityRecord pins a session to one worker. At most one live record
// exists per session; a new assignment overwrites the old one atomically
// under the store's per-key semantics.
type AffinityRecord struct {
	SessionID  string    `json:"session_id"`
	WorkerAddr string    `json:"worker_addr"`
	WorkerTag  string    `json:"worker_tag"`
	AssignedAt time.Time `json:"assigned_at"`
}
