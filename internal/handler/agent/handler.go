package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// DocumentIndex reports which agents have a document index loaded.
type DocumentIndex interface {
	Has(id agent.ID) bool
}

// Entry is one agent in the catalog response.
type Entry struct {
	agent.Profile
	HasDocuments bool `json:"hasDocuments"`
}

// Handler agent目录的HTTP处理器
type Handler struct {
	agents agent.Store
	docs   DocumentIndex
}

// New 创建agent处理器
func New(agents agent.Store, docs DocumentIndex) *Handler {
	return &Handler{
		agents: agents,
		docs:   docs,
	}
}

// RegisterRoutes 注册agent相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleListAgents)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	profiles := h.agents.List()
	entries := make([]Entry, 0, len(profiles))
	for _, p := range profiles {
		entry := Entry{Profile: p}
		if h.docs != nil {
			entry.HasDocuments = h.docs.Has(p.ID)
		}
		entries = append(entries, entry)
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}
