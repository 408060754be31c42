package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	_ "ballouchi/docs"
	"ballouchi/internal/authz"
	"ballouchi/internal/config"
	"ballouchi/internal/handlers"
	"ballouchi/internal/locks"
	"ballouchi/internal/logger"
	"ballouchi/internal/middleware"
	"ballouchi/internal/notify"
	"ballouchi/internal/queue"
	"ballouchi/internal/repositories"
	"ballouchi/internal/routes"
	"ballouchi/internal/services"
	"ballouchi/internal/storage"
)

// App owns the router and every connection opened for it.
type App struct {
	cfg    *config.Config
	log    *zap.Logger
	router *gin.Engine
	closer []func() error
}

func (a *App) Router() *gin.Engine { return a.router }

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type stores struct {
	users      repositories.UserRepository
	identities repositories.IdentityRepository
	merchants  repositories.MerchantRepository
	ping       handlers.Pinger
}

// New wires every collaborator named by cfg. reg receives the HTTP metrics;
// nil means the default prometheus registerer.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := a.openBlobs(ctx)
	if err != nil {
		return nil, err
	}
	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}

	var events services.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Username, cfg.Kafka.Password, log)
		a.closer = append(a.closer, producer.Close)
		events = producer
	}

	tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, log)
	if err != nil {
		// алерты не критичны для старта
		log.Warn("telegram notifier disabled", zap.Error(err))
		tg = nil
	}

	tokens := authz.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	deps := services.Deps{
		Users:      st.users,
		Merchants:  st.merchants,
		Identities: services.NewIdentityService(st.identities),
		Hasher:     services.NewAuthService(cfg.Auth.BcryptCost),
		Mailer: services.NewEmailService(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			cfg.Email.DryRun,
			log,
		),
		Events: events,
		Locker: locker,
		Log:    log,
	}
	if tg != nil {
		deps.Admins = tg
	}
	opts := services.Options{CodeTTL: cfg.Auth.CodeTTL, Timeout: cfg.Server.UpstreamTimeout}

	verification := services.NewVerificationService(deps, opts)
	sessions := services.NewSessionService(deps, opts, tokens)
	accounts := services.NewAccountService(deps, opts, blobs)
	merchants := services.NewMerchantService(deps, opts, blobs)

	metrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(log))
	router.Use(metrics.Handler())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.Files.Driver == "local" {
		router.Static(cfg.Files.PublicBaseURL, cfg.Files.RootDir)
	}

	routes.SetupRoutes(router, routes.Handlers{
		Auth:     handlers.NewAuthHandler(verification, sessions, log),
		Verify:   handlers.NewVerifyHandler(verification, log),
		User:     handlers.NewUserHandler(accounts, log),
		Merchant: handlers.NewMerchantHandler(merchants, cfg.Files.MaxUploadBytes, log),
		Health:   handlers.NewHealthHandler(st.ping),
	}, routes.Options{Tokens: tokens, AdminAPIKey: cfg.Admin.APIKey})

	a.router = router
	ok = true
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.cfg.Database
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closer = append(a.closer, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := repositories.RunMigrations(ctx, db); err != nil {
				return nil, err
			}
		}
		return &stores{
			users:      repositories.NewUserRepository(db),
			identities: repositories.NewIdentityRepository(db),
			merchants:  repositories.NewMerchantRepository(db),
			ping:       db.PingContext,
		}, nil

	case "mongo":
		client, err := repositories.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		db := client.Database(cfg.MongoDatabase)
		if err := repositories.EnsureMongoIndexes(ctx, db); err != nil {
			return nil, err
		}
		return &stores{
			users:      repositories.NewMongoUserRepository(db),
			identities: repositories.NewMongoIdentityRepository(db),
			merchants:  repositories.NewMongoMerchantRepository(db),
			ping:       mongoPing(client),
		}, nil

	case "memory":
		a.log.Warn("using in-memory store, data is lost on restart")
		mem := repositories.NewMemoryStore()
		return &stores{users: mem.Users(), identities: mem.Identities(), merchants: mem.Merchants()}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func mongoPing(client *mongo.Client) handlers.Pinger {
	return func(ctx context.Context) error { return client.Ping(ctx, nil) }
}

func (a *App) openBlobs(ctx context.Context) (storage.Store, error) {
	if a.cfg.Files.Driver == "s3" {
		s3cfg := a.cfg.S3
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:        s3cfg.Bucket,
			Region:        s3cfg.Region,
			Endpoint:      s3cfg.Endpoint,
			AccessKey:     s3cfg.AccessKey,
			SecretKey:     s3cfg.SecretKey,
			PublicBaseURL: s3cfg.PublicBaseURL,
			URLTTL:        s3cfg.URLTTL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return storage.NewLocalStore(a.cfg.Files.RootDir, a.cfg.Files.PublicBaseURL), nil
}

// openLocker shares locks through Redis when configured, otherwise per process.
func (a *App) openLocker(ctx context.Context) (locks.Locker, error) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return locks.NewKeyedMutex(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	a.closer = append(a.closer, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return locks.NewRedisLocker(client, "ballouchi:account", rc.LockTTL, a.log), nil
}

// Run loads the configuration, serves until SIGINT/SIGTERM and drains
// in-flight requests before returning.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := New(startCtx, cfg, log, nil)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", srv.Addr), zap.String("database", cfg.Database.Driver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
