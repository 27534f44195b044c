package stream

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	chathandler "github.com/zhouzirui/z-concierge/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// DefaultHeartbeat is the interval between keep-alive comments while a turn runs.
const DefaultHeartbeat = 8 * time.Second

// TurnHandler runs one turn to completion.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID string, in chatService.Input) (chatService.TurnResult, error)
}

// Handler delivers a turn's replies via Server-Sent Events
type Handler struct {
	chatSvc     TurnHandler
	turnTimeout time.Duration
	heartbeat   time.Duration
}

// New creates a new stream handler
func New(chatSvc TurnHandler, turnTimeout, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{chatSvc: chatSvc, turnTimeout: turnTimeout, heartbeat: heartbeat}
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Validated bool   `json:"validated,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

type turnOutcome struct {
	result chatService.TurnResult
	err    error
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")
	if strings.TrimSpace(message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	sse, err := utils.NewSSEWriter(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := chathandler.WithTurnTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	_ = sse.Event("start", StreamResponse{SessionID: sessionID})

	done := make(chan turnOutcome, 1)
	go func() {
		result, err := h.chatSvc.HandleTurn(ctx, sessionID, chatService.Input{Text: message})
		done <- turnOutcome{result: result, err: err}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[stream] client left session=%s", sessionID)
			return
		case <-ticker.C:
			if err := sse.Comment("heartbeat"); err != nil {
				return
			}
		case out := <-done:
			h.finish(sse, sessionID, out)
			return
		}
	}
}

func (h *Handler) finish(sse *utils.SSEWriter, sessionID string, out turnOutcome) {
	if out.err != nil {
		log.Printf("[stream] session=%s turn failed: %v", sessionID, out.err)
		_ = sse.Event("error", StreamResponse{SessionID: sessionID, Error: out.err.Error()})
		return
	}

	for _, reply := range out.result.Replies {
		_ = sse.Event("message", StreamResponse{
			SessionID: sessionID,
			Content:   reply.Content,
			Sender:    string(reply.Sender),
			Agent:     string(reply.Agent),
		})
	}
	_ = sse.Event("end", StreamResponse{
		SessionID: sessionID,
		Agent:     string(out.result.Agent),
		Outcome:   string(out.result.Outcome),
		Validated: out.result.Validated,
		Finished:  true,
	})
	log.Printf("[stream] completed turn for session=%s outcome=%s", sessionID, out.result.Outcome)
}
