package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("ai: empty model response")

// Generator is the narrow text generation contract the concierge core depends on.
// opts are forwarded to the chat model, e.g. model.WithModel to pick a model per call.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...model.Option) (string, error)
}

// InstructedGenerator additionally accepts an operator-supplied system message.
type InstructedGenerator interface {
	Generator
	Instruct(ctx context.Context, system, prompt string, opts ...model.Option) (string, error)
}

// ModelOptions selects name for a call; an empty name keeps the configured model.
func ModelOptions(name string) []model.Option {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return []model.Option{model.WithModel(name)}
}

// Service encapsulates the eino chains backing every text generation call.
type Service struct {
	plain      compose.Runnable[map[string]any, *schema.Message]
	instructed compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance backed by the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the chains around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("ai: chat model is nil")
	}

	plain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.UserMessage("{query}"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	instructed, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile instructed chain: %w", err)
	}

	return &Service{
		plain:      plain,
		instructed: instructed,
	}, nil
}

func compileChain(ctx context.Context, chatModel model.BaseChatModel, template prompt.ChatTemplate) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// Generate runs a single plain completion.
func (s *Service) Generate(ctx context.Context, prompt string, opts ...model.Option) (string, error) {
	return s.invoke(ctx, s.plain, map[string]any{"query": prompt}, opts)
}

// Instruct runs a completion under the given system message. An empty system
// message falls back to a plain completion.
func (s *Service) Instruct(ctx context.Context, system, prompt string, opts ...model.Option) (string, error) {
	if strings.TrimSpace(system) == "" {
		return s.Generate(ctx, prompt, opts...)
	}
	return s.invoke(ctx, s.instructed, map[string]any{"system": system, "query": prompt}, opts)
}

func (s *Service) invoke(ctx context.Context, chain compose.Runnable[map[string]any, *schema.Message], input map[string]any, opts []model.Option) (string, error) {
	var callOpts []compose.Option
	if len(opts) > 0 {
		callOpts = append(callOpts, compose.WithChatModelOption(opts...))
	}
	response, err := chain.Invoke(ctx, input, callOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrEmptyResponse
	}

	log.Printf("[ai] generated response, length=%d", len(response.Content))
	return response.Content, nil
}
