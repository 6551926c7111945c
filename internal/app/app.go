package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/pdfaccess/internal/analysis"
	"github.com/nikhilbhutani/pdfaccess/internal/api"
	"github.com/nikhilbhutani/pdfaccess/internal/api/handlers"
	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/bulk"
	"github.com/nikhilbhutani/pdfaccess/internal/config"
	"github.com/nikhilbhutani/pdfaccess/internal/database"
	"github.com/nikhilbhutani/pdfaccess/internal/extract"
	"github.com/nikhilbhutani/pdfaccess/internal/generation"
	"github.com/nikhilbhutani/pdfaccess/internal/llm"
	"github.com/nikhilbhutani/pdfaccess/internal/lock"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
	"github.com/nikhilbhutani/pdfaccess/internal/rewrite"
	"github.com/nikhilbhutani/pdfaccess/internal/storage"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
	"github.com/nikhilbhutani/pdfaccess/internal/store/memory"
	"github.com/nikhilbhutani/pdfaccess/internal/store/postgres"
)

// Store is everything the services persist. Both the PostgreSQL and the
// in-memory store implement it.
type Store interface {
	store.DocumentStore
	store.IssueStore
	store.RecordStore
	store.ContentStore
	store.ReportStore
}

// App holds the wired services shared by the API server and the worker.
type App struct {
	Config   *config.Config
	Store    Store
	Audit    audit.Logger
	Analysis *analysis.Service
	Machine  *remediation.Machine
	Bulk     *bulk.Orchestrator

	db    *pgxpool.Pool
	redis *redis.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.Store = postgres.New(db)
		a.Audit = audit.NewService(db)
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		a.Store = memory.New()
		a.Audit = audit.NewMemory()
	}

	var claims lock.Claimer
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		claims = lock.NewRedis(a.redis, cfg.Redis.ClaimPrefix)
	} else {
		slog.Warn("REDIS_ADDR not set, remediation claims are process local")
		claims = lock.NewMemory()
	}

	extractor := extract.NewExtractor(newStorage(cfg.Storage), extract.Config{
		Bucket:           cfg.Storage.Bucket,
		MaxBytes:         cfg.Extract.MaxBytes,
		StrictValidation: cfg.Extract.StrictValidation,
	})

	gateway := llm.NewGateway(llm.Config{
		DefaultProvider:  cfg.LLM.DefaultProvider,
		FallbackProvider: cfg.LLM.FallbackProvider,
		Model:            cfg.LLM.DefaultModel,
		FallbackModel:    cfg.LLM.FallbackModel,
		MaxRetries:       cfg.LLM.MaxRetries,
		RetryBackoff:     cfg.LLM.RetryBackoff,
		OpenAIKey:        cfg.LLM.OpenAIKey,
		OpenAIBaseURL:    cfg.LLM.OpenAIBaseURL,
		AnthropicKey:     cfg.LLM.AnthropicKey,
		OllamaURL:        cfg.LLM.OllamaURL,
	})
	generator := generation.NewService(gateway, generation.Config{
		Provider:    cfg.LLM.DefaultProvider,
		Model:       cfg.LLM.DefaultModel,
		Temperature: cfg.LLM.Temperature,
	}).WithUsageLog(a.Audit)
	rewriter := rewrite.NewClient(rewrite.Config{
		URL:     cfg.Rewrite.URL,
		Secret:  cfg.Rewrite.Secret,
		Timeout: cfg.Rewrite.Timeout,
	})

	s := a.Store
	a.Analysis = analysis.NewService(
		analysis.Stores{Documents: s, Issues: s, Records: s, Contents: s, Reports: s},
		extractor,
		nil,
	)
	a.Machine = remediation.NewMachine(s, claims, generator, rewriter, a.Analysis, remediation.Config{
		GenerateTimeout:  cfg.Remediation.GenerateTimeout,
		ImplementTimeout: cfg.Remediation.ImplementTimeout,
		ClaimTTL:         cfg.Remediation.ClaimTTL,
	}).WithAuditor(a.Audit)
	a.Bulk = bulk.NewOrchestrator(s, s, a.Machine, a.Analysis, bulk.Config{
		Concurrency: cfg.Remediation.BulkConcurrency,
	})

	slog.Info("services ready",
		"store", storeName(a.db),
		"queue", cfg.QueueEnabled(),
		"llm_provider", cfg.LLM.DefaultProvider,
		"llm_model", cfg.LLM.DefaultModel,
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

func newStorage(cfg config.StorageConfig) storage.Storage {
	if cfg.Backend == "local" {
		return storage.NewLocalStorage(cfg.LocalRoot)
	}
	return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey)
}

func storeName(db *pgxpool.Pool) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

// Deps builds the router dependencies. The queue is wired only when non-nil.
func (a *App) Deps(q Enqueuer) api.Deps {
	deps := api.Deps{
		Documents:    a.Analysis,
		DocumentRepo: a.Store,
		Issues:       a.Store,
		Contents:     a.Store,
		Machine:      a.Machine,
		Bulk:         a.Bulk,
		Summaries:    a.Analysis,
		Audit:        a.Audit,
		Checks:       a.Checks(),
	}
	if q != nil {
		deps.AnalyzeQueue = q
		deps.BulkQueue = q
	}
	return deps
}

// Enqueuer is implemented by queue.Client.
type Enqueuer interface {
	handlers.AnalyzeEnqueuer
	handlers.BulkEnqueuer
}

func (a *App) Checks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if a.db != nil {
		checks["database"] = a.db
	}
	if a.redis != nil {
		checks["redis"] = redisPinger{a.redis}
	}
	return checks
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
