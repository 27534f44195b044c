package agent

import "strings"

// ID identifies one of the specialised agents a turn can be dispatched to.
type ID string

const (
	General           ID = "general_agent"
	PersonalConcierge ID = "personal_concierge_agent"
)

// Profile captures the routing-facing attributes of an agent.
type Profile struct {
	ID                 ID     `json:"id"`
	Name               string `json:"name"`
	Responsibility     string `json:"responsibility"`
	RequiresValidation bool   `json:"requiresValidation"`
}

// Seed provides the closed set of agents the router may select.
func Seed() []Profile {
	return []Profile{
		{
			ID:             General,
			Name:           "General Agent",
			Responsibility: "This agent handles generic queries.",
		},
		{
			ID:                 PersonalConcierge,
			Name:               "Personal Concierge Agent",
			Responsibility:     "This agent handles queries related to a user's personal account details, for example orders and purchase history.",
			RequiresValidation: true,
		},
	}
}

// Parse maps raw text onto a known agent identifier.
func Parse(raw string) (ID, bool) {
	switch ID(strings.ToLower(strings.TrimSpace(raw))) {
	case General:
		return General, true
	case PersonalConcierge:
		return PersonalConcierge, true
	default:
		return "", false
	}
}

// RequiresValidation reports whether the agent may only be reached with a validated identity.
func (id ID) RequiresValidation() bool {
	return id == PersonalConcierge
}

// Request is what an agent's response generator receives for one turn.
type Request struct {
	SessionID string
	Query     string
	// RecordID is the validated user's record identifier; empty for anonymous turns.
	RecordID string
}
