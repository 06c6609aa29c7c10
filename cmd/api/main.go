package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/prettytickets/api/internal/genai"
	"github.com/prettytickets/api/internal/handlers"
	"github.com/prettytickets/api/internal/payments"
	"github.com/prettytickets/api/internal/platform/clientstate"
	"github.com/prettytickets/api/internal/platform/config"
	pfirestore "github.com/prettytickets/api/internal/platform/firestore"
	"github.com/prettytickets/api/internal/platform/idempotency"
	"github.com/prettytickets/api/internal/platform/jobs"
	"github.com/prettytickets/api/internal/platform/observability"
	"github.com/prettytickets/api/internal/platform/secrets"
	platformstorage "github.com/prettytickets/api/internal/platform/storage"
	"github.com/prettytickets/api/internal/repositories"
	firestoreRepo "github.com/prettytickets/api/internal/repositories/firestore"
	"github.com/prettytickets/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	objectStore, err := platformstorage.NewGCSObjectStore(storageClient, cfg.Storage.AssetsBucket)
	if err != nil {
		logger.Fatal("failed to initialise object store", zap.Error(err))
	}

	signer, err := newStorageSigner(cfg.Storage.SignerCredentials)
	if err != nil {
		logger.Fatal("failed to initialise storage signer", zap.Error(err))
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}

	var redisClient *redis.Client
	var sessionStore clientstate.Store
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		store, err := clientstate.NewRedisStore(redisClient, cfg.Sessions.TTL)
		if err != nil {
			logger.Fatal("failed to initialise redis session store", zap.Error(err))
		}
		sessionStore = store
	} else {
		logger.Info("redis not configured; view sessions are held in memory")
		sessionStore = clientstate.NewMemoryStore(cfg.Sessions.TTL)
	}

	var eventPublisher jobs.EventPublisher
	if cfg.Features.EnableTicketEvents && strings.TrimSpace(cfg.PubSub.Topic) != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		eventTopic := pubsubClient.Topic(cfg.PubSub.Topic)
		defer eventTopic.Stop()
		eventPublisher, err = jobs.NewPubSubEventPublisher(eventTopic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	}

	contentAPI, err := genai.NewContentAPI(ctx, cfg.AI.GeminiAPIKey)
	if err != nil {
		logger.Fatal("failed to initialise gemini client", zap.Error(err))
	}
	metadataGenerator := genai.NewMetadataGenerator(contentAPI, cfg.AI.TextModel, logger.Named("genai"))
	var imageGenerator services.ImageGenerator
	if cfg.Features.EnableImageGeneration {
		imageGenerator = genai.NewImageGenerator(contentAPI, cfg.AI.ImageModel, logger.Named("genai"))
	}

	ticketRepo, err := firestoreRepo.NewTicketRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise ticket repository", zap.Error(err))
	}

	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			paymentsLogger.Debug("stripe log", zFields...)
		},
		Clock: time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, redisClient, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	generationService, err := services.NewGenerationService(services.GenerationServiceDeps{
		Tickets:      ticketRepo,
		Metadata:     metadataGenerator,
		Images:       imageGenerator,
		Objects:      objectStore,
		Events:       eventPublisher,
		Logger:       logger.Named("generation"),
		Clock:        time.Now,
		EnableImages: cfg.Features.EnableImageGeneration,
	})
	if err != nil {
		logger.Fatal("failed to initialise generation service", zap.Error(err))
	}

	ticketService, err := services.NewTicketService(services.TicketServiceDeps{
		Tickets:      ticketRepo,
		ShareBaseURL: cfg.Server.PublicBaseURL,
		GalleryLimit: cfg.Sessions.GalleryLimit,
	})
	if err != nil {
		logger.Fatal("failed to initialise ticket service", zap.Error(err))
	}

	unlockService, err := services.NewUnlockService(services.UnlockServiceDeps{
		Tickets:     ticketRepo,
		Payments:    stripeProvider,
		Sessions:    sessionStore,
		Signer:      signedURLClient,
		Events:      eventPublisher,
		Logger:      logger.Named("unlock"),
		Clock:       time.Now,
		Bucket:      cfg.Storage.AssetsBucket,
		PrintExpiry: cfg.Storage.PrintURLExpiry,
		Amount:      cfg.PSP.UnlockAmount,
		Currency:    cfg.PSP.UnlockCurrency,
		SuccessURL:  cfg.PSP.SuccessURL,
		CancelURL:   cfg.PSP.CancelURL,
	})
	if err != nil {
		logger.Fatal("failed to initialise unlock service", zap.Error(err))
	}

	viewService, err := services.NewViewService(services.ViewServiceDeps{
		Sessions: sessionStore,
		Logger:   logger.Named("views"),
		Clock:    time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise view service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		handlers.SessionIDMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	ticketHandlers := handlers.NewTicketHandlers(generationService, ticketService, unlockService)
	sessionHandlers := handlers.NewSessionHandlers(viewService)
	webhookHandlers := handlers.NewWebhookHandlers(unlockService, cfg.PSP.StripeWebhookSecret)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithTicketRoutes(ticketHandlers.Routes),
		handlers.WithTicketMiddlewares(idempotencyMiddleware),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("prettytickets api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// newStorageSigner accepts either inline service-account JSON (typically a
// resolved secret) or a path to a key file.
func newStorageSigner(credentials string) (*platformstorage.ServiceAccountSigner, error) {
	trimmed := strings.TrimSpace(credentials)
	if trimmed == "" {
		return nil, errors.New("storage signer credentials are required")
	}
	if strings.HasPrefix(trimmed, "{") {
		return platformstorage.NewServiceAccountSignerFromJSON([]byte(trimmed))
	}
	return platformstorage.NewServiceAccountSignerFromFile(trimmed)
}

func newSystemService(client *firestore.Client, redisClient *redis.Client, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if redisClient != nil {
		r := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return r.Ping(ctx).Err()
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	defaultProject := strings.TrimSpace(os.Getenv("API_SECRET_DEFAULT_PROJECT_ID"))
	if defaultProject == "" {
		defaultProject = strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))
	}
	fallbackPath := strings.TrimSpace(os.Getenv("API_SECRET_FALLBACK_FILE"))
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}

	return secrets.NewFetcher(ctx, opts...)
}
