package settings

import (
	"errors"
	"strings"
	"sync"

	"github.com/zhouzirui/z-concierge/backend/internal/config"
)

// ErrInvalidMaxAttempts rejects non-positive attempt limits.
var ErrInvalidMaxAttempts = errors.New("settings: max attempts must be >= 1")

// Settings are the operator-editable knobs read at the start of every turn.
type Settings struct {
	GeneralSystemMessage   string `json:"generalSystemMessage"`
	PersonalSystemMessage  string `json:"personalSystemMessage"`
	ValidationInstructions string `json:"validationInstructions"`
	MaxAttempts            int    `json:"maxAttempts"`
	RouterFallbackReply    string `json:"routerFallbackReply"`
	// AgentModel overrides the chat model used for agent replies; empty keeps the configured one.
	AgentModel string `json:"agentModel"`
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	GeneralSystemMessage   *string `json:"generalSystemMessage,omitempty"`
	PersonalSystemMessage  *string `json:"personalSystemMessage,omitempty"`
	ValidationInstructions *string `json:"validationInstructions,omitempty"`
	MaxAttempts            *int    `json:"maxAttempts,omitempty"`
	RouterFallbackReply    *string `json:"routerFallbackReply,omitempty"`
	AgentModel             *string `json:"agentModel,omitempty"`
}

// Store guards the current settings.
type Store struct {
	mu      sync.RWMutex
	current Settings
}

// NewStore seeds the store from configuration.
func NewStore(cfg config.ConciergeConfig) *Store {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Store{current: Settings{
		GeneralSystemMessage:   cfg.GeneralSystemMessage,
		PersonalSystemMessage:  cfg.PersonalSystemMessage,
		ValidationInstructions: cfg.ValidationInstructions,
		MaxAttempts:            maxAttempts,
		RouterFallbackReply:    cfg.RouterFallbackReply,
		AgentModel:             cfg.AgentModel,
	}}
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ValidationInstructions is a convenience accessor for the state machine.
func (s *Store) ValidationInstructions() string {
	return s.Snapshot().ValidationInstructions
}

// Update applies a patch atomically and returns the resulting settings.
func (s *Store) Update(p Patch) (Settings, error) {
	if p.MaxAttempts != nil && *p.MaxAttempts < 1 {
		return Settings{}, ErrInvalidMaxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if p.GeneralSystemMessage != nil {
		next.GeneralSystemMessage = strings.TrimSpace(*p.GeneralSystemMessage)
	}
	if p.PersonalSystemMessage != nil {
		next.PersonalSystemMessage = strings.TrimSpace(*p.PersonalSystemMessage)
	}
	if p.ValidationInstructions != nil {
		next.ValidationInstructions = strings.TrimSpace(*p.ValidationInstructions)
	}
	if p.MaxAttempts != nil {
		next.MaxAttempts = *p.MaxAttempts
	}
	if p.RouterFallbackReply != nil {
		next.RouterFallbackReply = strings.TrimSpace(*p.RouterFallbackReply)
	}
	if p.AgentModel != nil {
		next.AgentModel = strings.TrimSpace(*p.AgentModel)
	}
	s.current = next
	return next, nil
}
