package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/redis/go-redis/v9"

	"github.com/tiffinbox/api/internal/di"
	"github.com/tiffinbox/api/internal/handlers"
	"github.com/tiffinbox/api/internal/payments"
	"github.com/tiffinbox/api/internal/platform/auth"
	"github.com/tiffinbox/api/internal/platform/config"
	"github.com/tiffinbox/api/internal/platform/events"
	pfirestore "github.com/tiffinbox/api/internal/platform/firestore"
	"github.com/tiffinbox/api/internal/platform/idempotency"
	"github.com/tiffinbox/api/internal/platform/jobs"
	"github.com/tiffinbox/api/internal/platform/observability"
	"github.com/tiffinbox/api/internal/platform/redisx"
	"github.com/tiffinbox/api/internal/platform/secrets"
	"github.com/tiffinbox/api/internal/repositories"
	firestoreRepo "github.com/tiffinbox/api/internal/repositories/firestore"
	"github.com/tiffinbox/api/internal/services"
)

const meterName = "github.com/tiffinbox/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	if err := run(ctx, logger, envValues, startedAt); err != nil {
		logger.Error("api exited with error", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, envValues map[string]string, startedAt time.Time) error {
	meter := otel.GetMeterProvider().Meter(meterName)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	redisClient := redisx.New(cfg.Redis)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		return fmt.Errorf("initialise firestore client: %w", err)
	}

	healthRepo, err := newHealthRepository(firestoreProvider, redisClient)
	if err != nil {
		return fmt.Errorf("initialise health repository: %w", err)
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		return fmt.Errorf("initialise repositories: %w", err)
	}

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.Gateway.StripeAPIKey,
		Logger: observability.EventLogger(logger.Named("stripe")),
		Clock:  time.Now,
	})
	if err != nil {
		return fmt.Errorf("initialise payment gateway: %w", err)
	}
	signatures, err := payments.NewSignatureVerifier(cfg.Gateway.SignatureSecret)
	if err != nil {
		return fmt.Errorf("initialise signature verifier: %w", err)
	}

	infra := di.Infrastructure{
		Gateway:    gateway,
		Signatures: signatures,
		Locker:     redisx.NewLocker(redisClient, redisx.WithLockTTL(cfg.Redis.LockTTL)),
		Meter:      meter,
		Logger:     observability.EventLogger(logger.Named("services")),
		Build:      buildInfo,
		Clock:      time.Now,
	}

	var publisher *events.KafkaPublisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher, err = events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.OrderTopic, logger.Named("events"))
		if err != nil {
			return fmt.Errorf("initialise order event publisher: %w", err)
		}
		defer publisher.Close()
		infra.Events = publisher
	} else {
		logger.Info("kafka brokers not configured; order events disabled")
	}

	pubsubClient, topic, err := newOperatorTopic(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise operator notifications: %w", err)
	}
	if topic != nil {
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		notifier, err := jobs.NewPubSubOperatorNotifier(topic, cfg.Notifications.OperatorEmail)
		if err != nil {
			return fmt.Errorf("initialise operator notifier: %w", err)
		}
		infra.Notifier = notifier
	} else {
		logger.Info("operator topic not configured; payment notices disabled")
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		return fmt.Errorf("initialise container: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise authenticator: %w", err)
	}
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, meter)

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewRedisStore(redisClient, cfg.Idempotency.KeyPrefix),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithOptionalKey(),
	)

	svc := container.Services
	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(projectID),
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger.Named("http")),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(buildInfo),
			handlers.WithHealthSystemService(svc.System),
		)),
		handlers.WithMenuRoutes(handlers.NewMenuHandlers(svc.Menu).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments,
			handlers.WithOrderIdempotency(idempotencyMiddleware),
		).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(svc.Payments).Routes),
		handlers.WithCouponRoutes(handlers.NewCouponHandlers(authenticator, svc.Coupons).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Payments, svc.Coupons).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Payments, cfg.Payments.PendingTimeout).Routes),
		handlers.WithInternalMiddlewares(oidcMiddleware),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "tiffinbox-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))

	group.Go(func() error {
		serverLogger.Info("tiffinbox api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return container.Reaper.Run(groupCtx, svc.Payments)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func newHealthRepository(provider *pfirestore.Provider, client *redis.Client) (repositories.HealthRepository, error) {
	return repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 3 * time.Second,
			Check:   provider.Ping,
		},
		{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisx.Ping(ctx, client)
			},
		},
	})
}

func newOperatorTopic(ctx context.Context, cfg config.Config) (*pubsub.Client, *pubsub.Topic, error) {
	topicID := strings.TrimSpace(cfg.Notifications.OperatorTopic)
	if topicID == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Notifications.PubSubProjectID)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Topic(topicID), nil
}

func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	sessions, err := auth.NewSessionTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return nil, err
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator([]auth.Verifier{sessions, firebaseVerifier}), nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
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

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, meter metric.Meter) func(http.Handler) http.Handler {
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(logger), auth.WithOIDCMeter(meter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames() []string {
	return []string{
		"Gateway.StripeAPIKey",
		"Gateway.SignatureSecret",
		"Auth.JWTSecret",
	}
}

// parseKeyValueList reads "a=b,c=d" lists, lower-casing keys.
func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
