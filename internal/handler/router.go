package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agentHandler "github.com/zhouzirui/z-concierge/backend/internal/handler/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/handler/chat"
	settingsHandler "github.com/zhouzirui/z-concierge/backend/internal/handler/settings"
	"github.com/zhouzirui/z-concierge/backend/internal/handler/speech"
	"github.com/zhouzirui/z-concierge/backend/internal/handler/stream"
	"github.com/zhouzirui/z-concierge/backend/internal/handler/upload"
	"github.com/zhouzirui/z-concierge/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/z-concierge/backend/internal/middleware"
	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	chatService "github.com/zhouzirui/z-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/z-concierge/backend/internal/service/directory"
	"github.com/zhouzirui/z-concierge/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-concierge/backend/internal/service/settings"
	speechService "github.com/zhouzirui/z-concierge/backend/internal/service/speech"
	"github.com/zhouzirui/z-concierge/backend/pkg/utils"
)

// Dependencies groups what the HTTP surface is wired to.
type Dependencies struct {
	Agents         agent.Store
	Chat           *chatService.Service
	Settings       *settings.Store
	Directory      *directory.Directory
	Library        *retrieval.Library
	Speech         *speechService.Service
	Voice          *speechService.VoiceChain
	Metrics        *metrics.Recorder
	Connections    *speech.ConnectionManager
	AllowedOrigins []string
	TurnTimeout    time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"records": deps.Directory.Records().Len(),
			"speech":  deps.Speech.Enabled(),
		})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	var (
		uploadObserver upload.Observer
		speechObserver speech.Observer
	)
	if deps.Metrics != nil {
		uploadObserver = deps.Metrics
		speechObserver = deps.Metrics
	}

	r.Route("/api", func(api chi.Router) {
		agentHandler.New(deps.Agents, deps.Library).RegisterRoutes(api)
		chat.New(deps.Chat, deps.TurnTimeout).RegisterRoutes(api)
		stream.New(deps.Chat, deps.TurnTimeout, stream.DefaultHeartbeat).RegisterRoutes(api)
		settingsHandler.New(deps.Settings).RegisterRoutes(api)
		upload.New(deps.Directory, deps.Library, uploadObserver).RegisterRoutes(api)

		var voice speech.VoiceProcessor
		if deps.Voice != nil {
			voice = deps.Voice
		}
		speech.New(deps.Speech, voice, speechObserver, deps.TurnTimeout).RegisterRoutes(api)
		speech.NewWebSocketHandler(deps.Speech, voice, deps.Chat, deps.Connections, deps.AllowedOrigins, deps.TurnTimeout).
			RegisterWebSocketRoutes(api)
	})

	return r
}
