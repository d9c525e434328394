package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conversor-edc/backend/internal/domain/ai"
	"github.com/conversor-edc/backend/internal/domain/categorization"
	"github.com/conversor-edc/backend/internal/domain/convert/pipeline"
	"github.com/conversor-edc/backend/internal/domain/extract"
	"github.com/conversor-edc/backend/internal/web"
	"github.com/conversor-edc/backend/pkg/config"
	"github.com/conversor-edc/backend/pkg/cron"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	extractor := extract.NewPDFExtractor(logger)

	opts := []pipeline.Option{pipeline.WithMaxPages(cfg.Converter.MaxPages)}
	gemini := ai.NewClient(ai.Config{
		APIKey:       cfg.Gemini.APIKey,
		Model:        cfg.Gemini.Model,
		Timeout:      cfg.Gemini.Timeout,
		PagesPerCall: cfg.Gemini.PagesPerCall,
	}, logger)
	if gemini != nil {
		opts = append(opts,
			pipeline.WithStrategies(
				&pipeline.TableStrategy{Logger: logger},
				&pipeline.LineStrategy{},
				gemini,
			),
			pipeline.WithQualityChecker(gemini),
		)
		logger.Info("ai collaborator enabled", slog.String("model", cfg.Gemini.Model))
	} else {
		logger.Info("ai collaborator disabled, running heuristics only")
	}

	converter := pipeline.New(extractor, logger, opts...)
	categories := categorization.NewEngine(nil)
	server := web.NewServer(cfg, converter, categories, logger)

	sweeper := cron.NewScheduler(cfg.Uploads.Dir, cfg.Uploads.MaxAge, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("http server failed", slog.Any("error", err))
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", slog.Any("error", err))
	}
	<-sweeper.Stop().Done()
	logger.Info("shutdown complete")
}
