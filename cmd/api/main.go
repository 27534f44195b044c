package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-concierge/backend/internal/app"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
	"github.com/zhouzirui/z-concierge/backend/internal/handler"
	speechHandler "github.com/zhouzirui/z-concierge/backend/internal/handler/speech"
	"github.com/zhouzirui/z-concierge/backend/internal/metrics"
	"github.com/zhouzirui/z-concierge/backend/internal/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	redact.SetEnabled(cfg.Concierge.RedactLogs)

	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize model clients: %v", err)
	}

	recorder := metrics.New()
	concierge := app.New(cfg, clients, recorder)
	if err := concierge.Preload(ctx, cfg.Concierge); err != nil {
		log.Fatalf("failed to preload concierge data: %v", err)
	}
	if concierge.Speech.Enabled() {
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("语音服务凭证未配置，跳过语音功能初始化")
	}

	connections := speechHandler.NewConnectionManager(recorder)
	defer connections.CloseAll()

	router := handler.NewRouter(handler.Dependencies{
		Agents:         concierge.Agents,
		Chat:           concierge.Chat,
		Settings:       concierge.Settings,
		Directory:      concierge.Directory,
		Library:        concierge.Library,
		Speech:         concierge.Speech,
		Voice:          concierge.Voice,
		Metrics:        recorder,
		Connections:    connections,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TurnTimeout:    cfg.Concierge.TurnTimeout,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Concierge backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
