package identity

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/z-concierge/backend/internal/redact"
	"github.com/zhouzirui/z-concierge/backend/internal/service/ai"
)

const extractionPrompt = "Extract the phone number and first name from the following user input: '%s'." +
	"Provide the answer in the following format: 'Phone Number: 123-456-7890, First Name: John'. " +
	"If the user input does not contain a phone number or first name, provide 'no' as the answer."

// Identity holds the fields a user supplies to start a challenge.
type Identity struct {
	Phone     string
	FirstName string
}

// Extractor turns free text into an Identity through the text generation service.
type Extractor struct {
	gen ai.Generator
}

// NewExtractor returns an extractor delegating to gen.
func NewExtractor(gen ai.Generator) *Extractor {
	return &Extractor{gen: gen}
}

// Extract makes a single best-effort call. It never returns an error: any
// delegate failure or malformed response reports ok=false.
func (e *Extractor) Extract(ctx context.Context, text string) (Identity, bool) {
	response, err := e.gen.Generate(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		log.Printf("[extractor] generation failed: %v", err)
		return Identity{}, false
	}

	id, ok := ParseIdentity(response)
	if !ok {
		log.Printf("[extractor] could not parse identity from response %q", redact.Text(response))
		return Identity{}, false
	}
	return id, true
}

// ParseIdentity reads "Phone Number: <p>, First Name: <n>". A response starting
// with "no" (any case) means the input carried no identity.
func ParseIdentity(response string) (Identity, bool) {
	trimmed := strings.Trim(strings.TrimSpace(response), `'"`)
	if trimmed == "" || strings.HasPrefix(strings.ToLower(trimmed), "no") {
		return Identity{}, false
	}

	fields := strings.Split(trimmed, ", ")
	if len(fields) < 2 {
		return Identity{}, false
	}

	phone, ok := fieldValue(fields[0])
	if !ok {
		return Identity{}, false
	}
	name, ok := fieldValue(fields[1])
	if !ok {
		return Identity{}, false
	}
	name = strings.TrimRight(name, ".")
	if phone == "" || name == "" {
		return Identity{}, false
	}
	return Identity{Phone: phone, FirstName: name}, true
}

func fieldValue(field string) (string, bool) {
	parts := strings.Split(field, ": ")
	if len(parts) < 2 {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
