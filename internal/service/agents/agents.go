package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/model/record"
	"github.com/zhouzirui/z-concierge/backend/internal/service/ai"
	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
)

// Retriever looks up passages in an agent's document index.
type Retriever interface {
	Retrieve(ctx context.Context, id agent.ID, query string) ([]string, bool, error)
}

// TransactionSource exposes the uploaded transactional data.
type TransactionSource interface {
	Transactions() *record.Transactions
}

// SettingsSource exposes the operator settings.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// General answers generic questions, grounded in the general corpus when one is loaded.
type General struct {
	gen      ai.InstructedGenerator
	docs     Retriever
	prompts  *ai.PromptManager
	settings SettingsSource
}

// NewGeneral builds the general agent.
func NewGeneral(gen ai.InstructedGenerator, docs Retriever, prompts *ai.PromptManager, settings SettingsSource) *General {
	return &General{gen: gen, docs: docs, prompts: prompts, settings: settings}
}

// Respond produces the general agent's reply.
func (g *General) Respond(ctx context.Context, req agent.Request) (string, error) {
	passages, ok, err := g.docs.Retrieve(ctx, agent.General, req.Query)
	if err != nil {
		log.Printf("[agent] session=%s general retrieval failed, answering without context: %v", req.SessionID, err)
		ok = false
	}
	current := g.settings.Snapshot()
	opts := ai.ModelOptions(current.AgentModel)
	if !ok {
		return g.gen.Generate(ctx, req.Query, opts...)
	}

	system := g.prompts.SystemPrompt(agent.General, current.GeneralSystemMessage)
	return g.gen.Instruct(ctx, system, g.prompts.ContextPrompt(req.Query, passages), opts...)
}

// Personal answers questions about a validated user's own account.
type Personal struct {
	gen          ai.InstructedGenerator
	docs         Retriever
	transactions TransactionSource
	prompts      *ai.PromptManager
	settings     SettingsSource
}

// NewPersonal builds the personal concierge agent.
func NewPersonal(gen ai.InstructedGenerator, docs Retriever, transactions TransactionSource, prompts *ai.PromptManager, settings SettingsSource) *Personal {
	return &Personal{gen: gen, docs: docs, transactions: transactions, prompts: prompts, settings: settings}
}

// Respond produces the personal agent's reply. Only rows whose UserID equals
// the validated record are shared with the model.
func (p *Personal) Respond(ctx context.Context, req agent.Request) (string, error) {
	passages, hasIndex, err := p.docs.Retrieve(ctx, agent.PersonalConcierge, req.Query)
	if err != nil {
		log.Printf("[agent] session=%s personal retrieval failed: %v", req.SessionID, err)
		hasIndex = false
	}
	tx := p.transactions.Transactions()
	current := p.settings.Snapshot()
	opts := ai.ModelOptions(current.AgentModel)

	if !hasIndex && tx == nil {
		return p.gen.Generate(ctx, req.Query, opts...)
	}

	userData := ""
	if tx != nil {
		data, err := UserData(tx, req.RecordID)
		if err != nil {
			return "", err
		}
		userData = data
	}

	system := p.prompts.SystemPrompt(agent.PersonalConcierge, current.PersonalSystemMessage)
	return p.gen.Instruct(ctx, system, p.prompts.PersonalPrompt(req.Query, userData, passages), opts...)
}

// UserData renders the user's transaction rows as a JSON array.
func UserData(tx *record.Transactions, recordID string) (string, error) {
	rows := tx.RowsFor(recordID)
	if rows == nil {
		rows = []map[string]string{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode user data: %w", err)
	}
	return string(data), nil
}
