package chat

import (
	"fmt"
	"time"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
)

// Stage is the position of a session inside the identity validation cycle.
type Stage int

const (
	StageAwaitingIdentity Stage = iota
	StageAwaitingAnswer
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingIdentity:
		return "awaiting_identity"
	case StageAwaitingAnswer:
		return "awaiting_answer"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// MarshalText renders the stage by name in JSON payloads.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name produced by MarshalText.
func (s *Stage) UnmarshalText(text []byte) error {
	switch string(text) {
	case "awaiting_identity":
		*s = StageAwaitingIdentity
	case "awaiting_answer":
		*s = StageAwaitingAnswer
	default:
		return fmt.Errorf("unknown stage %q", text)
	}
	return nil
}

// DefaultMaxAttempts bounds the security-question retries when nothing else is configured.
const DefaultMaxAttempts = 3

// Session captures one user conversation together with its validation state.
// A Session is owned by the chat service; callers only ever see copies.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Stage             Stage    `json:"stage"`
	Validated         bool     `json:"validated"`
	ValidationInvoked bool     `json:"validationInvoked"`
	// IdentityRequested is set once the identity prompt went out in the current cycle.
	IdentityRequested bool     `json:"identityRequested"`
	// ValidatingAgent is the agent whose request opened the current validation cycle.
	ValidatingAgent   agent.ID `json:"validatingAgent,omitempty"`
	AttemptCount      int      `json:"attemptCount"`
	MaxAttempts       int      `json:"maxAttempts"`
	PendingQuestion   string   `json:"pendingQuestion,omitempty"`
	PendingAnswer     string   `json:"-"`
	RecordID          string   `json:"-"`

	Transcript []Message `json:"transcript"`
}

// NewSession returns a session in its initial state.
func NewSession(id string, maxAttempts int, now time.Time) *Session {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Session{
		ID:          id,
		CreatedAt:   now,
		Stage:       StageAwaitingIdentity,
		MaxAttempts: maxAttempts,
		Transcript:  make([]Message, 0, 16),
	}
}

// Append records a message at the end of the transcript.
func (s *Session) Append(msg Message) {
	msg.SessionID = s.ID
	s.Transcript = append(s.Transcript, msg)
}

// ClearChallenge forgets the issued security question and its expected answer.
func (s *Session) ClearChallenge() {
	s.PendingQuestion = ""
	s.PendingAnswer = ""
}

// Reset implements the user-initiated clear action.
func (s *Session) Reset(maxAttempts int) {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	s.Stage = StageAwaitingIdentity
	s.Validated = false
	s.ValidationInvoked = false
	s.IdentityRequested = false
	s.ValidatingAgent = ""
	s.AttemptCount = 0
	s.MaxAttempts = maxAttempts
	s.RecordID = ""
	s.ClearChallenge()
	s.Transcript = s.Transcript[:0]
}

// Snapshot returns a deep copy that is safe to hand out of the owning service.
func (s *Session) Snapshot() Session {
	out := *s
	out.Transcript = make([]Message, len(s.Transcript))
	copy(out.Transcript, s.Transcript)
	return out
}
