package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/config"
	"github.com/becutandavid/podcasts-backend/internal/db/redis"
	"github.com/becutandavid/podcasts-backend/internal/domain"
	"github.com/becutandavid/podcasts-backend/internal/metrics"
	"github.com/becutandavid/podcasts-backend/internal/repository/catalog"
	"github.com/becutandavid/podcasts-backend/internal/repository/embcache"
	"github.com/becutandavid/podcasts-backend/internal/repository/memory"
	"github.com/becutandavid/podcasts-backend/internal/repository/vector"
	"github.com/becutandavid/podcasts-backend/internal/transport/openai"
	"github.com/becutandavid/podcasts-backend/internal/usecase/aggregate"
	"github.com/becutandavid/podcasts-backend/internal/usecase/datastore"
	embeddinguc "github.com/becutandavid/podcasts-backend/internal/usecase/embedding"
	"github.com/becutandavid/podcasts-backend/internal/usecase/health"
	"github.com/becutandavid/podcasts-backend/internal/usecase/indexing"
)

// kvStore backs the embedding cache.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// App is the composition root shared by all commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	registry  *redis.Registry
	catalog   *catalog.Store
	datastore *datastore.Service
	indexing  *indexing.Service
	aggregate *aggregate.Service
	health    *health.Service
}

// NewApp connects the configured backend, bootstraps the index and builds the services.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterVectorStoreMetrics()

	app := &App{cfg: cfg, logger: logger}

	cat, err := catalog.Open(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, err
	}
	app.catalog = cat

	backend, kv, pinger, err := app.openBackend(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	instrumented := app.buildEmbedder(kv)
	var embedder domain.Embedder = instrumented
	if cfg.Embedding.Instruction != "" {
		// outermost, so cache keys include the instruction
		embedder = domain.NewInstructionEmbedder(instrumented, cfg.Embedding.Instruction)
	}

	app.datastore = datastore.New(backend, embedder, logger)
	app.indexing = indexing.New(cat, app.datastore, logger)
	app.aggregate = aggregate.New(cat)
	app.health = health.New(pinger, instrumented, cat)
	return app, nil
}

// openBackend returns the vector backend, the cache store and the database pinger
// (nil in memory mode).
func (a *App) openBackend(ctx context.Context) (datastore.Backend, kvStore, health.DBPinger, error) {
	cfg := a.cfg

	if cfg.Database.Driver == config.DriverMemory {
		backend, err := memory.NewBackend(cfg.Collection.Dimensions, a.logger,
			memory.WithBatchSize(cfg.Index.BatchSize),
			memory.WithMetrics(),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("memory backend: %w", err)
		}
		a.logger.Info("Using in-memory vector backend", zap.Int("dimensions", cfg.Collection.Dimensions))
		return backend, memory.NewKV(), nil, nil
	}

	a.registry = redis.NewRegistry(a.logger)
	store, err := a.registry.Store(redis.Config{
		Addrs:      cfg.Database.Addrs,
		Username:   cfg.Database.Username,
		Password:   cfg.Database.Password,
		DB:         cfg.Database.DB,
		TextSearch: cfg.Database.Driver == config.DriverRedis,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return nil, nil, nil, fmt.Errorf("database not ready: %w", err)
	}

	repo, err := vector.Open(ctx, store, vector.Config{
		KeyPrefix:          cfg.Collection.KeyPrefix,
		Collection:         cfg.Collection.Name,
		Dimensions:         cfg.Collection.Dimensions,
		HNSWM:              cfg.Index.HNSWM,
		HNSWEFConstruction: cfg.Index.HNSWEFConstruct,
		EFRuntime:          cfg.Index.EFRuntime,
		BatchSize:          cfg.Index.BatchSize,
		Recreate:           cfg.Collection.Recreate,
	}, a.logger, vector.WithMetrics())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open vector collection: %w", err)
	}
	a.logger.Info("Opened vector collection",
		zap.String("connection", store.Alias()),
		zap.String("collection", cfg.Collection.Name),
		zap.String("algorithm", string(repo.Algorithm())),
		zap.Int("ef_runtime", repo.EFRuntime()),
	)
	return repo, store, store, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func (a *App) buildEmbedder(kv kvStore) *embeddinguc.InstrumentedEmbedder {
	ec := a.cfg.Embedding

	var embedder domain.Embedder = openai.NewEmbedder(&openai.Config{
		APIKey:         ec.APIKey,
		BaseURL:        ec.BaseURL,
		Model:          ec.Model,
		Dimensions:     ec.Dimensions,
		SendDimensions: ec.SendDimensions,
		Provider:       ec.Provider,
		Logger:         a.logger,
	})
	if ec.Cache {
		embedder = embcache.New(embedder, kv, a.logger,
			embcache.WithModel(ec.Model),
			embcache.WithDimensions(ec.Dimensions),
			embcache.WithCounter(metrics.EmbeddingCacheTotal),
		)
	}
	return embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, ec.MaxBatchSize, a.logger)
}

// Close releases the catalog and every database connection.
func (a *App) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn("Failed to close catalog", zap.Error(err))
		}
	}
}
