package routing

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
	"github.com/zhouzirui/z-concierge/backend/internal/service/ai"
)

var agentPattern = regexp.MustCompile(`(?i)Agent:\s*(general_agent|personal_concierge_agent)`)

const routerPrompt = `You are an AI assistant that determines which specialized agent should handle a given user query. The available agents are:

%s
Your task is to analyze the input query and output the name of the agent that should handle it, formatted as:

Agent: <agent_name>

Where <agent_name> is one of %s.

Do not provide any additional response or execute the agent's functionality. Simply output the agent name based on the input query.

Input Query: %s

Agent:
`

// Router picks the agent that should answer a message.
type Router struct {
	gen    ai.Generator
	agents agent.Store
}

// NewRouter builds a router over the given agent catalog.
func NewRouter(gen ai.Generator, agents agent.Store) *Router {
	return &Router{gen: gen, agents: agents}
}

// Route returns ok=false when the service fails or its reply names no known agent.
// Callers must not dispatch in that case.
func (r *Router) Route(ctx context.Context, text string) (agent.ID, bool) {
	response, err := r.gen.Generate(ctx, r.prompt(text))
	if err != nil {
		log.Printf("[router] generation failed: %v", err)
		return "", false
	}

	id, ok := ParseAgent(response)
	if !ok {
		log.Printf("[router] invalid response from the router: %q", redact.Truncate(response, 120))
		return "", false
	}
	log.Printf("[router] routing to %s", id)
	return id, true
}

// ParseAgent extracts the agent identifier from an "Agent: <name>" reply.
func ParseAgent(response string) (agent.ID, bool) {
	match := agentPattern.FindStringSubmatch(response)
	if match == nil {
		return "", false
	}
	return agent.Parse(match[1])
}

func (r *Router) prompt(text string) string {
	profiles := r.agents.List()

	var catalog strings.Builder
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		fmt.Fprintf(&catalog, "%s: %s\n", p.ID, p.Responsibility)
		names = append(names, fmt.Sprintf("%q", p.ID))
	}
	return fmt.Sprintf(routerPrompt, catalog.String(), strings.Join(names, " or "), text)
}
