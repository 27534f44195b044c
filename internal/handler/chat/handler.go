package chat

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// SessionService is the orchestrator surface the HTTP layer needs.
type SessionService interface {
	CreateSession(ctx context.Context) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	ResetSession(ctx context.Context, sessionID string) (chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	HandleTurn(ctx context.Context, sessionID string, in chatService.Input) (chatService.TurnResult, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc     SessionService
	turnTimeout time.Duration
}

// New 创建聊天处理器。turnTimeout 为 0 时不额外限制单轮耗时。
func New(chatSvc SessionService, turnTimeout time.Duration) *Handler {
	return &Handler{
		chatSvc:     chatSvc,
		turnTimeout: turnTimeout,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleDeleteSession)
	r.Post("/sessions/{sessionID}/turns", h.handleTurn)
	r.Post("/sessions/{sessionID}/reset", h.handleReset)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusForError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.ResetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	ctx, cancel := WithTurnTimeout(r.Context(), h.turnTimeout)
	defer cancel()

	result, err := h.chatSvc.HandleTurn(ctx, sessionID, chatService.Input{Text: payload.Message})
	if err != nil {
		log.Printf("[chat] session=%s turn failed: %v", sessionID, err)
		utils.RespondError(w, StatusForError(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// WithTurnTimeout bounds a turn when timeout is positive.
func WithTurnTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// StatusForError maps orchestrator errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
