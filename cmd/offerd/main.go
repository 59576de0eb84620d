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

	"github.com/redis/go-redis/v9"

	"github.com/liqtrade/offer-extractor/internal/async"
	"github.com/liqtrade/offer-extractor/internal/common"
	"github.com/liqtrade/offer-extractor/internal/fx"
	"github.com/liqtrade/offer-extractor/internal/jobstore"
	"github.com/liqtrade/offer-extractor/internal/llm/openai"
	"github.com/liqtrade/offer-extractor/internal/orchestrate"
	"github.com/liqtrade/offer-extractor/internal/pipeline"
	"github.com/liqtrade/offer-extractor/internal/reader"
	"github.com/liqtrade/offer-extractor/internal/repository"
	"github.com/liqtrade/offer-extractor/internal/server"
	"github.com/liqtrade/offer-extractor/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store: Redis when configured, in-process otherwise.
	var store jobstore.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = jobstore.NewRedisStore(rdb)
		logger.Info("job store: redis", "addr", cfg.Redis.Addr)
	} else {
		store = jobstore.NewMemoryStore()
		logger.Info("job store: in-memory")
	}

	// Archive: optional.
	var archive pipeline.Archiver
	if cfg.Database.DSN != "" {
		pool, err := repository.Open(ctx, repository.Config(cfg.Database), logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer repository.Close(pool, logger)
		if err := repository.HealthCheck(ctx, pool); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		archive = repository.NewProductArchive(pool, logger)
	}

	llmClient := openai.NewClient(openai.Config{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)

	orch := orchestrate.New(llmClient, fx.NewConverter(llmClient, logger), logger, orchestrate.Config{
		WindowSize:  cfg.Extract.WindowSize,
		RowsPerUnit: cfg.Extract.RowsPerUnit,
	})

	var hooks *webhook.Client
	if cfg.Webhook.URL != "" {
		hooks = webhook.NewClient(webhook.Config{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Backoff: cfg.Webhook.Backoff,
		}, logger)
	}

	ocrReader := reader.NewOCRReader(reader.OCRConfig{
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	proc := pipeline.NewProcessor(logger, store,
		reader.NewFileReader(logger, ocrReader.Hooks()), orch, archive, hooks)

	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Extract.Workers),
		async.WithQueueSize(cfg.Extract.QueueSize),
		async.WithProcessTimeout(cfg.Extract.ProcessTimeout),
	)

	srv := server.NewServer(logger, store, queue, cfg.Extract.UploadDir)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("offer-extractor listening", "addr", cfg.Server.HTTPAddr)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
}
