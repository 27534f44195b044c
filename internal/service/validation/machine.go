package validation

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
	"github.com/zhouzirui/z-concierge/backend/internal/service/identity"
)

// Replies emitted by the validation agent.
const (
	MessageUploadRequired = "No user data is loaded yet. Please upload the user records file before validating your identity."
	MessageIdentityPrompt = "Please provide your phone number and first name."
	MessageNotFound       = "User not found. Please check your phone number and first name."
	MessageValidated      = "Validation successful! You can now chat with the assistant."
	MessageLockedOut      = "Incorrect answer. You have used all your attempts. Please provide your phone number and first name to start again."
)

// RecordSource exposes the currently loaded record table; nil means nothing is loaded.
type RecordSource interface {
	Records() *record.Table
}

// IdentityExtractor turns a message into identity fields.
type IdentityExtractor interface {
	Extract(ctx context.Context, text string) (identity.Identity, bool)
}

// AnswerValidator judges a security answer.
type AnswerValidator interface {
	Validate(ctx context.Context, correct, answer, instructions string) identity.Verdict
}

// Result is what one step produced.
type Result struct {
	Reply   string
	Outcome chat.Outcome
	// ValidatorFallback is set when the answer check degraded to plain comparison.
	ValidatorFallback bool
}

// Option customises a Machine.
type Option func(*Machine)

// WithPicker fixes how security questions are drawn.
func WithPicker(pick identity.Picker) Option {
	return func(m *Machine) { m.pick = pick }
}

// WithInstructions supplies the operator's matching policy, read on every answer.
func WithInstructions(fn func() string) Option {
	return func(m *Machine) { m.instructions = fn }
}

// Machine walks a session through the identity challenge.
type Machine struct {
	records      RecordSource
	extractor    IdentityExtractor
	validator    AnswerValidator
	pick         identity.Picker
	instructions func() string
}

// NewMachine wires the state machine to its collaborators.
func NewMachine(records RecordSource, extractor IdentityExtractor, validator AnswerValidator, opts ...Option) *Machine {
	m := &Machine{
		records:      records,
		extractor:    extractor,
		validator:    validator,
		pick:         identity.RandomPicker,
		instructions: func() string { return "" },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step advances the session by one user input. The caller owns s and must not
// run two steps on the same session concurrently.
func (m *Machine) Step(ctx context.Context, s *chat.Session, input string) Result {
	if s.Stage == chat.StageAwaitingAnswer {
		return m.checkAnswer(ctx, s, input)
	}
	return m.identify(ctx, s, input)
}

func (m *Machine) identify(ctx context.Context, s *chat.Session, input string) Result {
	table := m.records.Records()
	if table.Len() == 0 {
		return Result{Reply: MessageUploadRequired, Outcome: chat.OutcomeUploadRequired}
	}

	if !s.IdentityRequested {
		s.IdentityRequested = true
		return Result{Reply: MessageIdentityPrompt, Outcome: chat.OutcomeIdentityRequested}
	}

	id, ok := m.extractor.Extract(ctx, input)
	if !ok {
		log.Printf("[validation] session=%s identity not understood", s.ID)
		return Result{Reply: MessageNotFound, Outcome: chat.OutcomeExtractionFailure}
	}

	challenge, err := identity.FindRecord(id.Phone, id.FirstName, table, m.pick)
	if err != nil {
		log.Printf("[validation] session=%s lookup phone=%s name=%s: %v", s.ID, redact.Text(id.Phone), redact.Name(id.FirstName), err)
		return Result{Reply: MessageNotFound, Outcome: chat.OutcomeLookupMiss}
	}

	s.RecordID = challenge.RecordID
	s.AttemptCount = 0
	s.Stage = chat.StageAwaitingAnswer
	s.PendingQuestion = challenge.Question
	s.PendingAnswer = challenge.Answer
	log.Printf("[validation] session=%s challenge issued", s.ID)
	return Result{Reply: "Security Question: " + challenge.Question, Outcome: chat.OutcomeChallengeIssued}
}

func (m *Machine) checkAnswer(ctx context.Context, s *chat.Session, input string) Result {
	verdict := m.validator.Validate(ctx, s.PendingAnswer, input, m.instructions())
	if verdict.MaxAttempts > 0 && verdict.MaxAttempts != s.MaxAttempts {
		log.Printf("[validation] session=%s max attempts %d -> %d", s.ID, s.MaxAttempts, verdict.MaxAttempts)
		s.MaxAttempts = verdict.MaxAttempts
	}

	if verdict.Match {
		s.Validated = true
		s.AttemptCount = 0
		s.Stage = chat.StageAwaitingIdentity
		s.ClearChallenge()
		log.Printf("[validation] session=%s validated", s.ID)
		return Result{Reply: MessageValidated, Outcome: chat.OutcomeValidated, ValidatorFallback: verdict.Fallback}
	}

	s.AttemptCount++
	if s.AttemptCount >= s.MaxAttempts {
		log.Printf("[validation] session=%s locked out after %d attempts", s.ID, s.AttemptCount)
		m.restartCycle(s)
		return Result{Reply: MessageLockedOut, Outcome: chat.OutcomeLockedOut, ValidatorFallback: verdict.Fallback}
	}

	challenge, err := identity.FindRecordByID(s.RecordID, m.records.Records(), m.pick)
	if err != nil {
		// The table was replaced underneath the session.
		log.Printf("[validation] session=%s record no longer available: %v", s.ID, err)
		m.restartCycle(s)
		return Result{Reply: MessageNotFound, Outcome: chat.OutcomeLookupMiss, ValidatorFallback: verdict.Fallback}
	}

	s.PendingQuestion = challenge.Question
	s.PendingAnswer = challenge.Answer
	return Result{
		Reply:             RetryMessage(s.MaxAttempts-s.AttemptCount, challenge.Question),
		Outcome:           chat.OutcomeRetry,
		ValidatorFallback: verdict.Fallback,
	}
}

// restartCycle returns to identity collection with the prompt considered issued,
// so the next message is read as a fresh identity submission.
func (m *Machine) restartCycle(s *chat.Session) {
	s.AttemptCount = 0
	s.Stage = chat.StageAwaitingIdentity
	s.RecordID = ""
	s.IdentityRequested = true
	s.ClearChallenge()
}

// RetryMessage renders the remaining-attempts reply.
func RetryMessage(remaining int, question string) string {
	noun := "attempts"
	if remaining == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("Incorrect answer. You have %d %s left. Security Question: %s", remaining, noun, question)
}
