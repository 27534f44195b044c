// Package app assembles the concierge from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/z-concierge/backend/internal/config"
	"github.com/zhouzirui/z-concierge/backend/internal/metrics"
	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/service/agents"
	"github.com/zhouzirui/z-concierge/backend/internal/service/ai"
	"github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/service/directory"
	"github.com/zhouzirui/z-concierge/backend/internal/service/identity"
	"github.com/zhouzirui/z-concierge/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-concierge/backend/internal/service/routing"
	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
	"github.com/zhouzirui/z-concierge/backend/internal/service/speech"
	"github.com/zhouzirui/z-concierge/backend/internal/service/validation"
)

// ErrNoLanguageModel is returned when no chat model credentials are configured.
var ErrNoLanguageModel = errors.New("ark credentials are not configured: set ARK_API_KEY and ARK_MODEL")

// Clients are the external model clients the concierge talks to.
type Clients struct {
	Generator ai.InstructedGenerator
	Embedder  retrieval.Embedder
	Audio     speech.AudioClient
}

// Concierge holds every wired component.
type Concierge struct {
	Agents    *agent.MemoryStore
	Settings  *settings.Store
	Directory *directory.Directory
	Library   *retrieval.Library
	Chat      *chat.Service
	Speech    *speech.Service
	Voice     *speech.VoiceChain
	Metrics   *metrics.Recorder
}

// NewClients builds the Ark chat model and, when an OpenAI key is present,
// the embedding and audio clients.
func NewClients(ctx context.Context, cfg *config.Config) (Clients, error) {
	if !cfg.AI.Enabled() {
		return Clients{}, ErrNoLanguageModel
	}
	aiSvc, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		return Clients{}, err
	}
	clients := Clients{Generator: aiSvc}

	if !cfg.OpenAI.Enabled() {
		log.Println("OpenAI 凭证未配置，检索使用词法匹配，语音功能关闭")
		return clients, nil
	}
	client, err := cfg.OpenAI.NewClient()
	if err != nil {
		return Clients{}, fmt.Errorf("create openai client: %w", err)
	}
	clients.Embedder = retrieval.NewOpenAIEmbedder(client, cfg.OpenAI.EmbeddingModel)
	clients.Audio = client
	return clients, nil
}

// New wires the concierge. recorder may be nil.
func New(cfg *config.Config, clients Clients, recorder *metrics.Recorder) *Concierge {
	agentStore := agent.NewMemoryStore(agent.Seed())
	settingsStore := settings.NewStore(cfg.Concierge)
	dir := directory.New()
	library := retrieval.NewLibrary(retrieval.Options{
		ChunkSize:    cfg.Concierge.ChunkSize,
		ChunkOverlap: cfg.Concierge.ChunkOverlap,
	}, cfg.Concierge.RetrievalTopK, clients.Embedder)
	prompts := ai.NewPromptManager()

	machine := validation.NewMachine(
		dir,
		identity.NewExtractor(clients.Generator),
		identity.NewValidator(clients.Generator),
		validation.WithInstructions(settingsStore.ValidationInstructions),
	)

	deps := chat.Dependencies{
		Agents:     agentStore,
		Router:     routing.NewRouter(clients.Generator, agentStore),
		Validation: machine,
		General:    agents.NewGeneral(clients.Generator, library, prompts, settingsStore),
		Personal:   agents.NewPersonal(clients.Generator, library, dir, prompts, settingsStore),
		Settings:   settingsStore,
	}
	if recorder != nil {
		deps.Observer = recorder
	}
	chatSvc := chat.NewService(deps)

	speechSvc := speech.NewService(clients.Audio, cfg.OpenAI)
	return &Concierge{
		Agents:    agentStore,
		Settings:  settingsStore,
		Directory: dir,
		Library:   library,
		Chat:      chatSvc,
		Speech:    speechSvc,
		Voice:     speech.NewVoiceChain(speechSvc, speechSvc, chatSvc),
		Metrics:   recorder,
	}
}

// Preload installs the user records, transactions and documents named in the
// configuration. Missing optional sources are skipped.
func (c *Concierge) Preload(ctx context.Context, cfg config.ConciergeConfig) error {
	if cfg.UsersCSV != "" {
		if err := c.Directory.LoadRecordsFile(cfg.UsersCSV); err != nil {
			return err
		}
	}
	if cfg.TransactionsCSV != "" {
		if err := c.Directory.LoadTransactionsFile(cfg.TransactionsCSV); err != nil {
			return err
		}
	}
	if len(cfg.GeneralDocuments) > 0 {
		if _, err := c.Library.LoadFiles(ctx, agent.General, cfg.GeneralDocuments); err != nil {
			return fmt.Errorf("index general documents: %w", err)
		}
	}
	if len(cfg.PersonalDocuments) > 0 {
		if _, err := c.Library.LoadFiles(ctx, agent.PersonalConcierge, cfg.PersonalDocuments); err != nil {
			return fmt.Errorf("index personal documents: %w", err)
		}
	}
	return nil
}
