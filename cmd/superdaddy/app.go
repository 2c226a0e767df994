package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zoontopia/superdaddy/internal/chat"
	"github.com/zoontopia/superdaddy/internal/chunker"
	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/contextbuilder"
	"github.com/zoontopia/superdaddy/internal/embeddings"
	"github.com/zoontopia/superdaddy/internal/enrich"
	"github.com/zoontopia/superdaddy/internal/entities"
	"github.com/zoontopia/superdaddy/internal/ingest"
	"github.com/zoontopia/superdaddy/internal/llm"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/retriever"
	"github.com/zoontopia/superdaddy/internal/selector"
	"github.com/zoontopia/superdaddy/internal/server"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

// app holds the wired application components.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    vectorstore.Store
	pipeline *ingest.Pipeline
	chat     *chat.Service
}

// buildApp loads configuration and wires the full component graph.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	completer, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("building llm client: %w", err)
	}

	embedder, err := embeddings.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("building embedding service: %w", err)
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	splitter, err := chunker.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("building splitter: %w", err)
	}

	refiner := enrich.New(completer, logger,
		enrich.WithBatchSize(cfg.Ingestion.RefineBatchSize),
		enrich.WithPause(cfg.Ingestion.RefinePause.Duration()),
	)

	var extractor *entities.Extractor
	var pipelineOpts []ingest.Option
	if cfg.Entities.Enabled {
		extractor = entities.NewExtractor(completer, logger, cfg.Entities.MaxKeywords)
		if err := store.EnsureCollection(ctx, cfg.Entities.Collection, embedder.Dimension()); err != nil {
			return nil, fmt.Errorf("preparing entity collection: %w", err)
		}
		registry := entities.NewRegistry(store, embedder, cfg.Entities.Collection, logger)
		pipelineOpts = append(pipelineOpts, ingest.WithEntityTagger(&entities.Tagger{
			Extractor: extractor,
			Registry:  registry,
		}))
	}

	pipeline := ingest.New(splitter, refiner, embedder, store,
		cfg.VectorStore.Collection, cfg.Ingestion, logger, pipelineOpts...)

	var retrieverExtractor retriever.EntityExtractor
	if extractor != nil {
		retrieverExtractor = extractor
	}
	strategy, err := retriever.New(cfg.Retrieval, store, embedder,
		cfg.VectorStore.Collection, retrieverExtractor, logger)
	if err != nil {
		return nil, fmt.Errorf("building retriever: %w", err)
	}

	chatService := chat.New(
		strategy,
		selector.New(completer, logger),
		contextbuilder.New(store, cfg.VectorStore.Collection, logger),
		completer,
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pipeline: pipeline,
		chat:     chatService,
	}, nil
}

// close releases the app's resources.
func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn(ctx, "closing vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	if cfg.Format != "" {
		logCfg.Format = cfg.Format
	}
	logCfg.Caller = cfg.Caller
	return logging.NewLogger(logCfg)
}

// runServe starts the HTTP server and blocks until the context is cancelled.
// When run_on_start is set, the configured source is ingested in the
// background once the server is up.
func runServe(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	srv, err := server.New(a.chat, a.pipeline, a.cfg.Server, a.cfg.Ingestion, a.logger)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if a.cfg.Ingestion.RunOnStart && a.cfg.Ingestion.SourcePath != "" {
		go func() {
			source, err := ingest.NewFileSource(a.cfg.Ingestion.SourcePath, a.cfg.Ingestion.SourceID)
			if err != nil {
				a.logger.Error(ctx, "startup ingestion source invalid", zap.Error(err))
				return
			}
			report := a.pipeline.Run(ctx, source, false)
			a.logger.Info(ctx, "startup ingestion finished",
				zap.String("status", string(report.Status)),
				zap.Int("persisted", report.Persisted))
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(a.cfg))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if d := cfg.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// runIngest runs a one-shot ingestion of the given file, or of the
// configured source when path is empty.
func runIngest(ctx context.Context, path, sourceID string, force bool) (ingest.Report, error) {
	a, err := buildApp(ctx)
	if err != nil {
		return ingest.Report{}, err
	}
	defer a.close(context.Background())

	if path == "" {
		path = a.cfg.Ingestion.SourcePath
		if sourceID == "" {
			sourceID = a.cfg.Ingestion.SourceID
		}
	}
	if path == "" {
		return ingest.Report{}, fmt.Errorf("no source file given and none configured")
	}

	source, err := ingest.NewFileSource(path, sourceID)
	if err != nil {
		return ingest.Report{}, err
	}
	return a.pipeline.Run(ctx, source, force), nil
}
