package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
)

// Sessions is the part of the chat service the REPL drives.
type Sessions interface {
	CreateSession(ctx context.Context) (chat.Session, error)
	ResetSession(ctx context.Context, sessionID string) (chat.Session, error)
	HandleTurn(ctx context.Context, sessionID string, in chatservice.Input) (chatservice.TurnResult, error)
}

// REPL reads user lines and prints the concierge's replies.
type REPL struct {
	Sessions    Sessions
	TurnTimeout time.Duration
	In          io.Reader
	Out         io.Writer
}

// Run loops until EOF, /quit or context cancellation.
func (r *REPL) Run(ctx context.Context) error {
	session, err := r.Sessions.CreateSession(ctx)
	if err != nil {
		return err
	}
	printMessages(r.Out, session.Transcript)

	scanner := bufio.NewScanner(r.In)
	for {
		fmt.Fprint(r.Out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.Out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			reset, err := r.Sessions.ResetSession(ctx, session.ID)
			if err != nil {
				return err
			}
			printMessages(r.Out, reset.Transcript)
			continue
		}

		if err := r.turn(ctx, session.ID, line); err != nil {
			fmt.Fprintf(r.Out, "error: %v\n", err)
		}
	}
}

func (r *REPL) turn(ctx context.Context, sessionID, line string) error {
	if r.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.TurnTimeout)
		defer cancel()
	}
	result, err := r.Sessions.HandleTurn(ctx, sessionID, chatservice.Input{Text: line})
	if err != nil {
		return err
	}
	printMessages(r.Out, result.Replies)
	return nil
}

func printMessages(out io.Writer, messages []chat.Message) {
	for _, msg := range messages {
		fmt.Fprintf(out, "[%s] %s\n", speaker(msg), msg.Content)
	}
}

func speaker(msg chat.Message) string {
	if msg.Agent != "" {
		return string(msg.Agent)
	}
	return string(msg.Sender)
}
