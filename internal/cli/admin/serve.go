package admin

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/api/handlers"
	"github.com/convoflow/convoflow/internal/cache"
	"github.com/convoflow/convoflow/internal/config"
	"github.com/convoflow/convoflow/internal/crawler"
	"github.com/convoflow/convoflow/internal/database"
	"github.com/convoflow/convoflow/internal/embedding"
	"github.com/convoflow/convoflow/internal/jobs"
	"github.com/convoflow/convoflow/internal/llm"
	"github.com/convoflow/convoflow/internal/logger"
	"github.com/convoflow/convoflow/internal/queue"
	"github.com/convoflow/convoflow/internal/repository"
	"github.com/convoflow/convoflow/internal/server"
	"github.com/convoflow/convoflow/internal/service"
	"github.com/convoflow/convoflow/internal/storage"
	"github.com/convoflow/convoflow/internal/telemetry"
)

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and job workers",
		Long:  "Start the convoflow API server and the background worker pools",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	log, err := logger.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	// 10% trace sampling in production, everything elsewhere.
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTelemetry()
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, "migrations", log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	businessRepo := repository.NewBusinessRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	handoffRepo := repository.NewHandoffRepository(pool)
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	chunkRepo := repository.NewKnowledgeChunkRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	local, err := cache.NewMemory(0)
	if err != nil {
		return fmt.Errorf("failed to build memory cache: %w", err)
	}
	var remote cache.Store
	if cfg.HasRedis() {
		remote = cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("distributed cache tier enabled", zap.String("addr", cfg.RedisAddr))
	}
	appCache := cache.NewTiered(remote, local, log)

	providers, err := buildProviders(ctx, cfg, log)
	if err != nil {
		return err
	}
	gateway := embedding.NewGateway(providers, appCache, log)

	manager := queue.NewManager(jobRepo, log)

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, log)

	businessSvc := service.NewBusinessService(businessRepo, apiKeyRepo, log)
	ingestionSvc := service.NewIngestionService(txRunner, knowledgeRepo, manager, cfg.MaxChunkChars, log)
	retrievalSvc := service.NewRetrievalService(gateway, chunkRepo, log)
	conversationSvc := service.NewConversationService(
		conversationRepo, messageRepo, retrievalSvc, llmClient, appCache, manager, log)
	handoffSvc := service.NewHandoffService(handoffRepo, conversationRepo, log)
	analysisSvc := service.NewAnalysisService(messageRepo, llmClient, log)

	// Nil archiver disables snapshot storage without a code path change.
	var archive jobs.SnapshotArchiver
	if cfg.HasS3() {
		crawlArchive, err := storage.NewCrawlArchive(ctx, storage.ArchiveConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create crawl archive: %w", err)
		}
		if err := crawlArchive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure crawl archive bucket: %w", err)
		}
		log.Info("crawl archive ready", zap.String("bucket", cfg.S3Bucket))
		archive = crawlArchive
	}

	siteCrawler := crawler.New(crawler.Config{
		MaxDepth: cfg.CrawlMaxDepth,
		MaxPages: cfg.CrawlMaxPages,
		Delay:    time.Duration(cfg.CrawlDelayMillis) * time.Millisecond,
	}, log)

	workers := jobs.NewWorkers(
		chunkRepo, retrievalSvc, gateway, analysisSvc,
		siteCrawler, ingestionSvc, archive,
		cfg.WorkerConcurrency, log)
	if err := workers.Register(manager); err != nil {
		return fmt.Errorf("failed to register workers: %w", err)
	}
	manager.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    businessSvc,
		Logger:           log,
		MessageHandler:   handlers.NewMessageHandler(conversationSvc, conversationRepo),
		SearchHandler:    handlers.NewSearchHandler(retrievalSvc),
		KnowledgeHandler: handlers.NewKnowledgeHandler(ingestionSvc, knowledgeRepo, manager),
		HandoffHandler:   handlers.NewHandoffHandler(handoffSvc),
		QueueHandler:     handlers.NewQueueHandler(manager),
		BusinessHandler:  handlers.NewBusinessHandler(businessSvc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop dispatching before draining worker pools.
	cancel()
	manager.CloseAll()

	log.Info("server exited")
	return nil
}

// buildProviders assembles the embedding fallback chain in the configured
// order, skipping providers without credentials.
func buildProviders(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]embedding.Provider, error) {
	var providers []embedding.Provider
	for _, name := range strings.Split(cfg.ProviderOrder, ",") {
		switch strings.TrimSpace(name) {
		case "openai":
			if !cfg.HasOpenAI() {
				log.Warn("embedding provider skipped, no credentials", zap.String("provider", "openai"))
				continue
			}
			providers = append(providers, embedding.NewOpenAIProvider(cfg.OpenAIAPIKey))
		case "gemini":
			if !cfg.HasGemini() {
				log.Warn("embedding provider skipped, no credentials", zap.String("provider", "gemini"))
				continue
			}
			gemini, err := embedding.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create gemini provider: %w", err)
			}
			providers = append(providers, gemini)
		case "":
		default:
			log.Warn("unknown embedding provider in EMBEDDING_PROVIDER_ORDER", zap.String("provider", name))
		}
	}
	if len(providers) == 0 {
		log.Warn("no embedding providers configured, vector search and indexing will fail")
	}
	return providers, nil
}
