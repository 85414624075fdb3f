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

	"qrchat/internal/api"
	"qrchat/internal/config"
	"qrchat/internal/logging"
	"qrchat/internal/metrics"
	"qrchat/internal/service/ai"
	"qrchat/internal/service/chat"
	"qrchat/internal/service/voice"
	"qrchat/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.BasicConfig.LogLevel, gin.Mode() == gin.ReleaseMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	logger.Info("opening message store", zap.String("driver", cfg.Store.Driver))
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("open message store", zap.Error(err))
	}
	defer store.Close()

	chatModel, err := ai.NewChatModel(ctx, cfg)
	if err != nil {
		logger.Fatal("init chat model", zap.Error(err))
	}
	if cfg.Provider("openai").APIKey == "" {
		logger.Warn("no OpenAI API key configured; voice queries will fail")
	}

	responder := ai.NewResponder(chatModel, logger.Named("ai"), m)
	speech := ai.NewSpeechClient(cfg, m)
	chatService := chat.NewService(storage.Instrument(store, m), responder, logger.Named("chat"), m)
	voiceBridge := voice.NewBridge(speech, responder, speech, logger.Named("voice"), m)

	handlers := api.NewHandler(chatService, voiceBridge, m, logger.Named("http"))
	router := api.NewRouter(handlers)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.BasicConfig.ChatProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
