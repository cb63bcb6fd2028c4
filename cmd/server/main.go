package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flash-quiz/internal/api"
	"flash-quiz/internal/config"
	"flash-quiz/internal/db"
	"flash-quiz/internal/logger"
	"flash-quiz/internal/services"
	"flash-quiz/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.LogMode)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database).Msg("open database")
	}
	defer conn.Close()

	quotaService := services.NewQuotaService(conn, cfg.QueryCap)
	pdfService := services.NewPDFService()
	ingestionService := services.NewIngestionService(pdfService, log)
	aiService := services.NewAIService(services.AIConfig{
		APIKey:  cfg.CompletionKey,
		BaseURL: cfg.CompletionBaseURL,
		Model:   cfg.CompletionModel,
		Timeout: cfg.CompletionTimeout,
	}, log)
	runner := services.NewBatchRunner(aiService, services.FixedDelay{Delay: cfg.PacingDelay}, quotaService, log)

	if !aiService.Configured() {
		log.Warn().Msg("no default completion key configured; sessions must supply their own")
	}

	server := api.NewServer(api.Options{
		Sessions:    session.NewManager(),
		Ingestion:   ingestionService,
		Runner:      runner,
		Quota:       quotaService,
		DefaultKey:  aiService.Configured(),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Int("query_cap", cfg.QueryCap).Dur("pacing", cfg.PacingDelay).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
