package settings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-concierge/backend/internal/config"
	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
)

func setupRouter() (*chi.Mux, *settings.Store) {
	store := settings.NewStore(config.ConciergeConfig{MaxAttempts: 3, GeneralSystemMessage: "Be helpful."})
	r := chi.NewRouter()
	New(store).RegisterRoutes(r)
	return r, store
}

func TestGetSettings(t *testing.T) {
	r, _ := setupRouter()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/settings", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got settings.Settings
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MaxAttempts != 3 || got.GeneralSystemMessage != "Be helpful." {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	r, store := setupRouter()
	body := []byte(`{"maxAttempts":5,"routerFallbackReply":" Could you rephrase? "}`)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	current := store.Snapshot()
	if current.MaxAttempts != 5 || current.RouterFallbackReply != "Could you rephrase?" {
		t.Fatalf("unexpected settings %+v", current)
	}
	if current.GeneralSystemMessage != "Be helpful." {
		t.Fatalf("untouched field changed: %+v", current)
	}
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	r, store := setupRouter()
	for _, body := range []string{`{"maxAttempts":0}`, `{"unknown":true}`, `oops`} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte(body))))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, resp.Code)
		}
	}
	if store.Snapshot().MaxAttempts != 3 {
		t.Fatalf("settings changed by rejected update")
	}
}
