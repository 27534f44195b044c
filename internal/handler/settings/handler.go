package settings

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// Store is the settings surface exposed over HTTP.
type Store interface {
	Snapshot() settings.Settings
	Update(p settings.Patch) (settings.Settings, error)
}

// Handler exposes the operator settings.
type Handler struct {
	store Store
}

func New(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGet)
	r.Put("/settings", h.handleUpdate)
}

func (h *Handler) handleGet(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := utils.DecodeJSON(w, r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.store.Update(patch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrInvalidMaxAttempts) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	log.Printf("[settings] updated, maxAttempts=%d", updated.MaxAttempts)
	utils.RespondJSON(w, http.StatusOK, updated)
}
