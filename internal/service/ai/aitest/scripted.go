// Package aitest provides deterministic text generators for tests.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("aitest: script exhausted")

// Reply is one scripted generation outcome.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays replies in order and records every prompt it receives.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
	systems []string
	models  []string
	// Respond, when set, takes precedence over the script.
	Respond func(prompt string) (string, error)
}

// New returns a generator that answers with texts in order.
func New(texts ...string) *Scripted {
	s := &Scripted{}
	for _, text := range texts {
		s.replies = append(s.replies, Reply{Text: text})
	}
	return s
}

// Then queues another reply.
func (s *Scripted) Then(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, Reply{Text: text})
	return s
}

// ThenError queues a failing call.
func (s *Scripted) ThenError(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, Reply{Err: err})
	return s
}

// Generate implements ai.Generator.
func (s *Scripted) Generate(_ context.Context, prompt string, opts ...model.Option) (string, error) {
	return s.next("", prompt, opts)
}

// Instruct implements ai.InstructedGenerator.
func (s *Scripted) Instruct(_ context.Context, system, prompt string, opts ...model.Option) (string, error) {
	return s.next(system, prompt, opts)
}

func (s *Scripted) next(system, prompt string, opts []model.Option) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	s.systems = append(s.systems, system)
	s.models = append(s.models, requestedModel(opts))
	if s.Respond != nil {
		return s.Respond(prompt)
	}
	if len(s.replies) == 0 {
		return "", ErrExhausted
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply.Text, reply.Err
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Systems returns the system messages received, aligned with Prompts.
func (s *Scripted) Systems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.systems...)
}

// Models returns the model requested per call, empty when none was named.
func (s *Scripted) Models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

func requestedModel(opts []model.Option) string {
	resolved := model.GetCommonOptions(&model.Options{}, opts...)
	if resolved.Model == nil {
		return ""
	}
	return *resolved.Model
}

// Calls reports how many generations were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
