package identity

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/zhouzirui/z-concierge/backend/internal/service/ai"
)

// DefaultInstructions is the matching policy used when the operator leaves it blank.
const DefaultInstructions = "The user's answer must be exactly the same as the correct answer, ignoring letter case."

const validationPrompt = `You are checking a user's answer to a security question.
Matching policy: %s
Correct answer: %s
User answer: %s

Reply with one line in the format "<true|false>, <maximum attempts|Not specified>".
The first value says whether the user answer is acceptable under the matching policy.
The second value is the maximum number of attempts stated in the matching policy, or "Not specified" when it states none.`

// Verdict is the outcome of one answer check.
type Verdict struct {
	Match bool
	// MaxAttempts is a positive override read from the response, or zero.
	MaxAttempts int
	// Fallback is set when the delegate failed and plain comparison decided.
	Fallback bool
}

// Validator compares a user's answer with the stored one.
type Validator struct {
	gen ai.Generator
}

// NewValidator returns a validator delegating to gen.
func NewValidator(gen ai.Generator) *Validator {
	return &Validator{gen: gen}
}

// Validate asks the generation service to judge the answer under instructions.
// On delegate failure it degrades to case-insensitive equality.
func (v *Validator) Validate(ctx context.Context, correct, answer, instructions string) Verdict {
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}

	response, err := v.gen.Generate(ctx, fmt.Sprintf(validationPrompt, instructions, correct, answer))
	if err == nil && strings.TrimSpace(response) == "" {
		err = ai.ErrEmptyResponse
	}
	if err != nil {
		log.Printf("[validator] delegate failed, using direct comparison: %v", err)
		return Verdict{Match: strings.EqualFold(correct, answer), Fallback: true}
	}
	return ParseVerdict(response)
}

// ParseVerdict reads "<true|false>, <attempts|Not specified>".
func ParseVerdict(response string) Verdict {
	tokens := strings.Split(strings.TrimSpace(response), ",")

	verdict := Verdict{
		Match: strings.Contains(strings.ToLower(tokens[0]), "true"),
	}
	if len(tokens) > 1 {
		if n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(tokens[1]), `."'`)); err == nil && n > 0 {
			verdict.MaxAttempts = n
		}
	}
	return verdict
}
