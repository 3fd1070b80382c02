package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/formworks/pdf-form-filler/internal/config"
	"github.com/formworks/pdf-form-filler/internal/facts"
	"github.com/formworks/pdf-form-filler/internal/fetch"
	"github.com/formworks/pdf-form-filler/internal/jobs"
	"github.com/formworks/pdf-form-filler/internal/llm"
	"github.com/formworks/pdf-form-filler/internal/server"
	"github.com/formworks/pdf-form-filler/internal/storage"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. Logs always go to stderr so stdio
// mode never interferes with the MCP protocol on stdout.
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// buildBlobStore selects GCS when a bucket is configured, otherwise an
// in-memory store for local development.
func buildBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.BlobStore, func(), error) {
	if cfg.Bucket == "" {
		logger.Warn("no bucket configured, using in-memory storage; data will not survive restarts")
		return storage.NewMemory(), func() {}, nil
	}

	store, err := storage.NewGCSStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to bucket %s: %w", cfg.Bucket, err)
	}
	return store, func() { _ = store.Close() }, nil
}

// buildLLMClient selects the decision backend from the configured provider.
func buildLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, func(), error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		client, err := llm.NewVertexClient(ctx, cfg.GCPProject, cfg.GCPRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("creating vertex client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	default:
		return llm.NewOpenAIClient(cfg.APIBase, cfg.APIKey), func() {}, nil
	}
}

func run() error {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		return err
	}
	if version != "dev" {
		cfg.Version = version
	}

	logger := setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	llmClient, closeLLM, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLLM()

	orch := jobs.NewOrchestrator(jobs.Deps{
		Blobs:         blobs,
		Manifests:     storage.NewManifestStore(blobs, cfg.ManifestName),
		Fetcher:       fetch.NewClient(cfg.MaxFormSize, logger),
		Aggregator:    facts.NewAggregator(blobs, cfg.FactLimit, logger),
		Decider:       llm.NewEngine(llmClient, cfg.Model, logger),
		Registry:      jobs.NewRegistry(),
		Logger:        logger,
		Concurrency:   cfg.FillConcurrency,
		MaxFormSize:   cfg.MaxFormSize,
		BucketBaseURL: cfg.BucketBaseURL,
	})

	srv, err := server.NewServer(cfg, orch, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		if err := <-serverErrCh; err != nil {
			return err
		}
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pdf-form-filler: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Form Filler\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
