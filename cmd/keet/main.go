package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nidoux/keet/internal/ai"
	aitools "github.com/nidoux/keet/internal/ai/tools"
	"github.com/nidoux/keet/internal/audio"
	"github.com/nidoux/keet/internal/bot"
	"github.com/nidoux/keet/internal/config"
	"github.com/nidoux/keet/internal/conversation"
	"github.com/nidoux/keet/internal/whatsapp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	store, err := conversation.NewBoltStore(cfg.DataDir + "/keet.db")
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}
	defer store.Close()

	convo := conversation.NewManager(store)

	// Periodic cleanup of stale per-user locks to prevent memory leaks
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			convo.CleanupLocks(1 * time.Hour)
		}
	}()

	waClient := whatsapp.NewClient(cfg.WAPhoneNumberID, cfg.WAAccessToken)

	agent := ai.NewAgent(cfg.OpenAIAPIKey, aitools.BuildRegistry(), ai.WithModel(cfg.OpenAIModel))

	var stt bot.Transcriber
	if cfg.ElevenLabsAPIKey != "" {
		stt = audio.NewTranscriber(cfg.ElevenLabsAPIKey)
	} else {
		log.Warn().Msg("ELEVENLABS_API_KEY not set, voice notes disabled")
	}

	botHandler := bot.NewHandler(waClient, convo, agent, stt)
	webhookHandler := whatsapp.NewWebhookHandler(cfg.WAVerifyToken, cfg.WAAppSecret, botHandler.HandleMessage)

	if cfg.WAAppSecret == "" {
		log.Warn().Msg("WA_APP_SECRET not set, webhook signature checks disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/webhook", webhookHandler.HandleVerify)
	r.Post("/webhook", webhookHandler.HandleIncoming)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("keet: listening")
		log.Info().Str("verify_token", cfg.WAVerifyToken).Msg("keet: webhook verify token")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("keet: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("shutdown")
	}
	log.Info().Msg("keet: stopped")
}
