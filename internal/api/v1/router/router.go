package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"shardz/internal/api/v1/handler"
	"shardz/internal/config"
	"shardz/internal/cron"
	"shardz/internal/middleware"
	"shardz/internal/pubsub"
	"shardz/internal/repository"
	"shardz/internal/service"
	"shardz/internal/terminal"
)

// App bundles the long-lived resources the router wires up, so main can run
// the billing cron and shut everything down in order.
type App struct {
	Pool      *pgxpool.Pool
	AdminPool *pgxpool.Pool
	Cron      *cron.BillingCron
	Terminal  *terminal.Manager
}

// Close releases the database pools and tears down live terminal sessions.
func (a *App) Close() {
	a.Terminal.Shutdown()
	a.AdminPool.Close()
	a.Pool.Close()
}

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, *App, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initialized")

	// 1. Open the control-plane pool and the separate admin pool. Engine DDL
	// runs on its own connections so CREATE/DROP DATABASE never shares a
	// session with application queries.
	pool, err := openPool(ctx, cfg.DBConnectionString, cfg.Environment)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open control-plane pool")
		return nil, nil, err
	}
	adminPool, err := openPool(ctx, cfg.AdminDBConnectionString, cfg.Environment)
	if err != nil {
		pool.Close()
		logger.Error().Err(err).Msg("Failed to open admin pool")
		return nil, nil, err
	}
	logger.Info().Msg("Database connections successful")

	// 2. Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		pool.Close()
		adminPool.Close()
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	// 3. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Initialize Pub/Sub publisher; billing events are optional in
	// development.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			pool.Close()
			adminPool.Close()
			logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
			return nil, nil, err
		}
		publisher = p
	}

	// 5. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(pool)
	tenantRepo := repository.NewTenantRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	invoiceRepo := repository.NewInvoiceRepo(pool)
	billingLogRepo := repository.NewBillingLogRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	storageRepo := repository.NewStorageRepo(pool)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)
	engineAdmin := repository.NewEngineAdmin(adminPool)

	userSvc := service.NewUserService(userRepo)
	tenantSvc := service.NewTenantService(tenantRepo, userRepo, subRepo, engineAdmin, cfg.TenantDBHost, cfg.TenantDBPort, logger)
	billingSvc := service.NewBillingService(subRepo, invoiceRepo, billingLogRepo, logger)
	paystackSvc := service.NewPaystackService(
		cfg.PaystackBaseURL, cfg.PaystackSecretKey,
		cfg.BaseURL+"/v1/billing/payments/verify",
		time.Duration(cfg.PaystackTimeoutSec)*time.Second, cfg.PaystackFxRate,
		paymentRepo, userRepo, billingSvc, logger)
	storageSvc := service.NewStorageService(storageRepo, subRepo, cfg.StorageRoot, cfg.StorageQuota, cfg.BaseURL, logger)
	proofSvc := service.NewProofService(paymentRepo, billingSvc, s3Client, cfg.S3Bucket, logger)
	apiKeySvc := service.NewAPIKeyService(apiKeyRepo)
	emailSvc := service.NewEmailService(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender, logger)
	migrationSvc := service.NewMigrationService(tenantRepo, cfg.TenantDBHost, cfg.TenantDBPort,
		cfg.PgDumpPath, cfg.PgRestorePath, logger)

	terminalManager := terminal.NewManager(cfg.PsqlPath, cfg.TenantDBHost, cfg.TenantDBPort, logger)
	billingCron := cron.NewBillingCron(
		billingSvc, tenantSvc, emailSvc, userRepo,
		publisher, cfg.BillingEventsTopic,
		time.Duration(cfg.BillingCronIntervalHours)*time.Hour, logger)

	authHandler := handler.NewAuthHandler(userSvc, validate, cfg.JWTSecret,
		oauthConfig(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.BaseURL, "github", github.Endpoint, []string{"read:user", "user:email"}),
		oauthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL, "google", google.Endpoint, []string{"openid", "email", "profile"}))
	tenantHandler := handler.NewTenantHandler(tenantSvc, validate)
	migrationHandler := handler.NewMigrationHandler(migrationSvc, validate)
	billingHandler := handler.NewBillingHandler(billingSvc, paystackSvc, validate)
	storageHandler := handler.NewStorageHandler(storageSvc, validate)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeySvc)
	proofHandler := handler.NewProofHandler(proofSvc)
	terminalHandler := handler.NewTerminalHandler(tenantSvc, terminalManager)
	statusHandler := handler.NewStatusHandler(tenantSvc, storageSvc, billingSvc)

	// 6. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, apiKeySvc)
	adminMiddleware := func(next http.Handler) http.Handler {
		return authMiddleware(middleware.AdminMiddleware(cfg.AdminUserIDs)(next))
	}

	// 7. Create ServeMux router
	mux := http.NewServeMux()

	// Create a subrouter for API v1 with the /v1 prefix
	apiV1Mux := http.NewServeMux()
	authHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	tenantHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	migrationHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	billingHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	storageHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	apiKeyHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	proofHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	terminalHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	statusHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// 8. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	app := &App{
		Pool:      pool,
		AdminPool: adminPool,
		Cron:      billingCron,
		Terminal:  terminalManager,
	}
	return middleware.LoggerMiddleware(c.Handler(mux)), app, nil
}

// openPool opens a pgx pool against the given DSN with environment-dependent
// defaults applied.
func openPool(ctx context.Context, dsn, environment string) (*pgxpool.Pool, error) {
	// In a development environment, ensure SSL is disabled for local testing.
	// In production, the connection string should carry its own SSL settings.
	if environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// oauthConfig builds a provider config, or nil when the provider is not set
// up for this deployment.
func oauthConfig(clientID, clientSecret, baseURL, name string, endpoint oauth2.Endpoint, scopes []string) *oauth2.Config {
	if clientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		RedirectURL:  baseURL + "/v1/auth/callback/" + name,
		Scopes:       scopes,
	}
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
