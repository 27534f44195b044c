package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
)

// PromptTemplate defines the default instructions for one agent.
type PromptTemplate struct {
	SystemPrompt string
	ContextRules []string
}

// PromptManager builds the system and user prompts sent on behalf of each agent.
type PromptManager struct {
	templates map[agent.ID]*PromptTemplate
}

// NewPromptManager creates a new prompt manager with default templates
func NewPromptManager() *PromptManager {
	manager := &PromptManager{
		templates: make(map[agent.ID]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// SystemPrompt returns the operator override when present, otherwise the agent's default.
func (pm *PromptManager) SystemPrompt(id agent.ID, override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}

	template, ok := pm.templates[id]
	if !ok {
		return ""
	}
	if len(template.ContextRules) == 0 {
		return template.SystemPrompt
	}
	return template.SystemPrompt + "\n\nRules:\n- " + strings.Join(template.ContextRules, "\n- ")
}

// ContextPrompt frames a question against retrieved passages.
func (pm *PromptManager) ContextPrompt(question string, passages []string) string {
	return fmt.Sprintf(`You are given a question and context.
Your task is to find the answer for the query from the context.
Keep the answer short and precise.
Your answers should revolve around the provided context.
If inquired about capabilities or background information, give a general brief overview derived from the context.

Question: %s
Context: %s

Answer:`, question, joinPassages(passages))
}

// PersonalPrompt frames a question against the validated user's account data and,
// when available, retrieved passages.
func (pm *PromptManager) PersonalPrompt(question, userData string, passages []string) string {
	if userData == "" {
		userData = "None"
	}

	var builder strings.Builder
	builder.WriteString("You are helping a customer whose identity has been verified.\n")
	builder.WriteString("Use the customer's account data below to answer their question. ")
	builder.WriteString("If the data does not contain the answer, say so instead of guessing.\n\n")
	builder.WriteString("Customer data: ")
	builder.WriteString(userData)
	builder.WriteString("\n")
	if len(passages) > 0 {
		builder.WriteString("Context: ")
		builder.WriteString(joinPassages(passages))
		builder.WriteString("\n")
	}
	builder.WriteString("\nQuestion: ")
	builder.WriteString(question)
	builder.WriteString("\n\nAnswer:")
	return builder.String()
}

func joinPassages(passages []string) string {
	return strings.Join(passages, "\n\n")
}

// loadDefaultTemplates loads the default prompt templates for built-in agents
func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[agent.General] = &PromptTemplate{
		SystemPrompt: `You are an assistant for question answering. You are given a question and a set of documents.
Your task is to find the most relevant document that answers the question and reply from it.`,
	}

	pm.templates[agent.PersonalConcierge] = &PromptTemplate{
		SystemPrompt: `You are a personal concierge for a verified customer. You answer questions about their own orders, purchases and account history.`,
		ContextRules: []string{
			"Only discuss the data of the customer you are talking to.",
			"Never reveal security question answers or identity fields.",
			"Keep replies short and friendly.",
		},
	}
}
