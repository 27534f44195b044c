package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/service/validation"
)

type generalRouter struct{}

func (generalRouter) Route(context.Context, string) (agent.ID, bool) { return agent.General, true }

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, req agent.Request) (string, error) {
	return "echo: " + req.Query, nil
}

type unusedValidator struct{}

func (unusedValidator) Step(context.Context, *chat.Session, string) validation.Result {
	return validation.Result{}
}

func TestREPL(t *testing.T) {
	svc := chatservice.NewService(chatservice.Dependencies{
		Router:     generalRouter{},
		Validation: unusedValidator{},
		General:    echoResponder{},
		Personal:   echoResponder{},
	})
	out := &bytes.Buffer{}
	repl := &REPL{
		Sessions: svc,
		In:       strings.NewReader("hello\n\n/reset\nagain\n/quit\nignored\n"),
		Out:      out,
	}

	if err := repl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got := out.String()
	if strings.Count(got, chatservice.GreetingMessage) != 2 {
		t.Fatalf("expected greeting at start and after reset:\n%s", got)
	}
	if !strings.Contains(got, "[general_agent] echo: hello") || !strings.Contains(got, "[general_agent] echo: again") {
		t.Fatalf("missing replies:\n%s", got)
	}
	if strings.Contains(got, "ignored") {
		t.Fatalf("input after /quit must not be processed:\n%s", got)
	}
}
