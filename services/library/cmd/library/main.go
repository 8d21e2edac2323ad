package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dorian/internal/googleauth"
	"dorian/internal/util"
	"dorian/pkg/ai"
	"dorian/pkg/storage"
	"dorian/services/library/internal/app"
	"dorian/services/library/internal/assistant"
	"dorian/services/library/internal/config"
	"dorian/services/library/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLogs := util.InitLogger(cfg.LogLevel, "library", cfg.LogsDir)
	defer func() { _ = closeLogs() }()

	objects, err := newObjectStore(cfg)
	if err != nil {
		util.Fatal("failed to init object storage", "err", err)
	}
	presignExpiry, _ := config.ParseDuration(cfg.PresignExpiry, 0)
	storageTimeout, _ := config.ParseDuration(cfg.StorageTimeout, 10*time.Second)
	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		Objects:        objects,
		ImportDir:      cfg.ImportDir,
		PublicBaseURL:  cfg.PublicBaseURL,
		PresignExpiry:  presignExpiry,
		StorageTimeout: storageTimeout,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	ctx := context.Background()
	generator, responder, err := newGenerator(cfg)
	if err != nil {
		util.Fatal("failed to init generator", "err", err)
	}
	sessionTTL, _ := config.ParseDuration(cfg.SessionTTL, 0)
	llmTimeout, _ := config.ParseDuration(cfg.LLMTimeout, 60*time.Second)
	retryDelay, _ := config.ParseDuration(cfg.RetryDelay, 0)
	asst, err := assistant.New(assistant.Config{
		Generator:      generator,
		Library:        appCore.Library(),
		SessionTTL:     sessionTTL,
		MaxTurns:       cfg.MaxHistoryTurns,
		RetryDelay:     retryDelay,
		LLMTimeout:     llmTimeout,
		StorageTimeout: storageTimeout,
	})
	if err != nil {
		util.Fatal("failed to init assistant", "err", err)
	}

	var voice *assistant.Voice
	if responder != nil && cfg.TTSAPIKey != "" {
		tts, err := ai.NewGoogleTTS(ctx, cfg.TTSAPIKey, ai.VoiceConfig{
			LanguageCode:   cfg.TTSLanguageCode,
			Name:           cfg.TTSVoiceName,
			SpeakingRate:   ai.DefaultVoice.SpeakingRate,
			Pitch:          ai.DefaultVoice.Pitch,
			EffectsProfile: ai.DefaultVoice.EffectsProfile,
		})
		if err != nil {
			util.Fatal("failed to init text-to-speech", "err", err)
		}
		voice = assistant.NewVoice(responder, tts, llmTimeout)
	} else {
		logger.Warn("voice assistant disabled", "provider", cfg.GenerationProvider, "tts_configured", cfg.TTSAPIKey != "")
	}

	verifier, err := googleauth.NewVerifier(googleauth.Config{
		AllowedEmail: cfg.AllowedEmail,
		Endpoint:     cfg.GoogleAPIBaseURL,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxies", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Assistant:               asst,
		Voice:                   voice,
		Auth:                    verifier,
		TrustedProxies:          trusted,
		CORSOrigins:             cfg.CORSOrigins,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		AskRateLimitPerMinute:   cfg.AskRateLimitPerMinute,
		AudioRateLimitPerMinute: cfg.AudioRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		MaxAudioBytes:           cfg.MaxAudioBytes,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("library server listening", "addr", addr, "storage", cfg.StorageBackend, "provider", cfg.GenerationProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	if err := httpServer.Close(); err != nil {
		logger.Warn("close redis", "err", err)
	}
	slog.Info("library server stopped")
}

func newObjectStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	if cfg.StorageBackend == config.StorageMinio {
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return storage.NewFileStore(cfg.FileStorageDir)
}

// newGenerator returns the chat provider and, when the provider can listen
// to audio, the same provider as an AudioResponder.
func newGenerator(cfg config.FileConfig) (ai.Generator, ai.AudioResponder, error) {
	switch cfg.GenerationProvider {
	case config.ProviderOllama:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), cfg.GenerationModel), nil, nil
	case config.ProviderOpenAICompat:
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil, nil
	}
	opts := []ai.GeminiOption{ai.WithGeminiRequestsPerMinute(cfg.GeminiRequestsPerMinute)}
	if cfg.GenerationBaseURL != "" {
		opts = append(opts, ai.WithGeminiBaseURL(cfg.GenerationBaseURL))
	}
	client, err := ai.NewGeminiClient(cfg.GenerationAPIKey, opts...)
	if err != nil {
		return nil, nil, err
	}
	gen := ai.NewGeminiGenerator(client, cfg.GenerationModel)
	return gen, gen, nil
}
