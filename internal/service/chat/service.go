package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
	"github.com/zhouzirui/z-concierge/backend/internal/service/validation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// GreetingMessage opens every transcript.
const GreetingMessage = "Hello, how can I help you?"

// ApologyMessage replaces a reply the agent failed to produce.
const ApologyMessage = "Sorry, I couldn't answer that right now. Please try again."

// Router selects the agent for a message.
type Router interface {
	Route(ctx context.Context, text string) (agent.ID, bool)
}

// Validator runs one step of the identity challenge.
type Validator interface {
	Step(ctx context.Context, s *chat.Session, input string) validation.Result
}

// Responder generates an agent's reply.
type Responder interface {
	Respond(ctx context.Context, req agent.Request) (string, error)
}

// SettingsSource exposes the operator settings.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// Observer is notified about turn progress.
type Observer interface {
	TurnHandled(outcome chat.Outcome, elapsed time.Duration)
	Routed(id agent.ID, ok bool)
	ValidationStep(outcome chat.Outcome, validatorFallback bool)
}

type noopObserver struct{}

func (noopObserver) TurnHandled(chat.Outcome, time.Duration) {}
func (noopObserver) Routed(agent.ID, bool)                   {}
func (noopObserver) ValidationStep(chat.Outcome, bool)       {}

// Dependencies wires the orchestrator to its collaborators.
type Dependencies struct {
	// Agents is the catalog consulted for each agent's validation requirement.
	// When nil, or when an agent is missing from it, agent.ID.RequiresValidation decides.
	Agents     agent.Store
	Router     Router
	Validation Validator
	General    Responder
	Personal   Responder
	Settings   SettingsSource
	Observer   Observer
	Now        func() time.Time
}

// Input is one user turn. Audio is set when the text was transcribed.
type Input struct {
	Text  string
	Audio *chat.AudioRef
}

// TurnResult summarises what a turn produced.
type TurnResult struct {
	SessionID string         `json:"sessionId"`
	Agent     agent.ID       `json:"agent,omitempty"`
	Outcome   chat.Outcome   `json:"outcome"`
	Validated bool           `json:"validated"`
	Stage     chat.Stage     `json:"stage"`
	Replies   []chat.Message `json:"replies"`
}

type entry struct {
	mu      sync.Mutex
	session *chat.Session
}

// Service encapsulates conversation state management and per-turn dispatch.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	deps     Dependencies
}

// NewService bootstraps the in-memory session orchestrator.
func NewService(deps Dependencies) *Service {
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		sessions: make(map[string]*entry),
		deps:     deps,
	}
}

// CreateSession provisions an anonymous session whose transcript starts with the greeting.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := chat.NewSession(uuid.NewString(), s.maxAttempts(), s.deps.Now())
	session.Append(s.message(chat.SenderAssistant, "", GreetingMessage))

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session}
	s.mu.Unlock()

	return session.Snapshot(), nil
}

// GetSession retrieves a copy of the session.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Snapshot(), nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript, nil
}

// ResetSession clears the transcript and every validation field.
func (s *Service) ResetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.Reset(s.maxAttempts())
	e.session.Append(s.message(chat.SenderAssistant, "", GreetingMessage))
	log.Printf("[chat] session=%s reset", sessionID)
	return e.session.Snapshot(), nil
}

// DeleteSession discards a session.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// HandleTurn processes one user turn to completion. Turns on the same session
// are serialised; different sessions proceed independently.
func (s *Service) HandleTurn(ctx context.Context, sessionID string, in Input) (TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	e, err := s.lookup(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := s.deps.Now()
	session := e.session

	userMsg := s.message(chat.SenderUser, "", text)
	userMsg.Audio = in.Audio
	session.Append(userMsg)
	firstReply := len(session.Transcript)

	result := TurnResult{SessionID: session.ID}
	switch {
	case session.ValidationInvoked && !session.Validated:
		result.Agent = session.ValidatingAgent
		result.Outcome = s.validate(ctx, session, text)
	default:
		result.Agent, result.Outcome = s.dispatch(ctx, session, text)
	}

	result.Validated = session.Validated
	result.Stage = session.Stage
	result.Replies = append([]chat.Message(nil), session.Transcript[firstReply:]...)

	s.deps.Observer.TurnHandled(result.Outcome, s.deps.Now().Sub(start))
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, session *chat.Session, text string) (agent.ID, chat.Outcome) {
	id, ok := s.deps.Router.Route(ctx, text)
	s.deps.Observer.Routed(id, ok)
	if !ok {
		log.Printf("[chat] session=%s turn not routed: %q", session.ID, redact.Truncate(redact.Text(text), 80))
		if reply := s.currentSettings().RouterFallbackReply; reply != "" {
			session.Append(s.message(chat.SenderAssistant, "", reply))
		}
		return "", chat.OutcomeRouterFailure
	}

	if s.requiresValidation(id) && !session.Validated {
		session.ValidationInvoked = true
		session.ValidatingAgent = id
		return id, s.validate(ctx, session, text)
	}
	return id, s.respond(ctx, session, s.responder(id), id, text)
}

func (s *Service) requiresValidation(id agent.ID) bool {
	if s.deps.Agents != nil {
		if profile, ok := s.deps.Agents.FindByID(id); ok {
			return profile.RequiresValidation
		}
	}
	return id.RequiresValidation()
}

func (s *Service) responder(id agent.ID) Responder {
	if id == agent.PersonalConcierge {
		return s.deps.Personal
	}
	return s.deps.General
}

func (s *Service) validate(ctx context.Context, session *chat.Session, text string) chat.Outcome {
	res := s.deps.Validation.Step(ctx, session, text)
	session.Append(s.message(chat.SenderValidation, "", res.Reply))
	s.deps.Observer.ValidationStep(res.Outcome, res.ValidatorFallback)
	return res.Outcome
}

func (s *Service) respond(ctx context.Context, session *chat.Session, responder Responder, id agent.ID, text string) chat.Outcome {
	reply, err := responder.Respond(ctx, agent.Request{
		SessionID: session.ID,
		Query:     text,
		RecordID:  session.RecordID,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Printf("[chat] session=%s agent=%s failed to respond: %v", session.ID, id, err)
		session.Append(s.message(chat.SenderAssistant, id, ApologyMessage))
		return chat.OutcomeResponderFailure
	}

	session.Append(s.message(chat.SenderAssistant, id, reply))
	return chat.OutcomeAnswered
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Service) message(sender chat.Sender, id agent.ID, content string) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Agent:     id,
		Content:   content,
		CreatedAt: s.deps.Now(),
	}
}

func (s *Service) currentSettings() settings.Settings {
	if s.deps.Settings == nil {
		return settings.Settings{MaxAttempts: chat.DefaultMaxAttempts}
	}
	return s.deps.Settings.Snapshot()
}

func (s *Service) maxAttempts() int {
	return s.currentSettings().MaxAttempts
}
