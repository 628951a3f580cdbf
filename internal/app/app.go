package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "carwash/docs"
	"carwash/internal/config"
	"carwash/internal/handlers"
	"carwash/internal/logging"
	"carwash/internal/metrics"
	"carwash/internal/middleware"
	"carwash/internal/pdf"
	"carwash/internal/ratelimit"
	"carwash/internal/repositories"
	"carwash/internal/routes"
	"carwash/internal/services"
	"carwash/internal/utils"
)

func Run() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.Env, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	m := metrics.New()
	health := map[string]handlers.Pinger{}

	// === DB ===
	var store repositories.Store
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		store = repositories.NewMemoryStore()
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("close db", zap.Error(err))
			}
		}()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		store = repositories.NewPostgresStore(db)
		health["postgres"] = db
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	// === Redis (опционально) ===
	var limiter services.SendLimiter
	if cfg.Redis.URL != "" {
		rdb, err := ratelimit.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, OTP throttling falls back to db", zap.Error(err))
		} else {
			defer rdb.Close()
			limiter = ratelimit.NewRedisLimiter(rdb, cfg.OTP.MaxSends, cfg.OTP.SendWindow, "")
			health["redis"] = redisPinger{rdb}
		}
	}

	// === Collaborators ===
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		logger,
	)
	mobizonClient := utils.NewClientWithOptions(cfg.Mobizon.APIKey, cfg.Mobizon.SenderID, cfg.Mobizon.DryRun, logger)

	telegram, err := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, logger)
	if err != nil {
		logger.Warn("telegram alerts disabled", zap.Error(err))
	}

	var files services.FileStorage
	serveLocal := false
	if cfg.Cloudinary.CloudName != "" {
		cld, err := services.NewCloudinaryStorage(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			return err
		}
		files = cld
	} else {
		files = services.NewLocalStorage(cfg.Files.RootDir, cfg.Files.PublicURL)
		serveLocal = true
	}

	// === Services ===
	audit := services.NewAuditLogger(store)
	notifications := services.NewNotificationService(store)
	userService := services.NewUserService(store.Users())
	profileService := services.NewProfileService(store, audit, logger)

	kycService := services.NewKYCService(store, audit, notifications, m, logger)
	kycService.Mailer = emailService
	if telegram != nil {
		kycService.Alerter = telegram
	}

	inspector := services.NewHTTPImageInspector(cfg.Verification.FetchTimeout,
		strings.TrimRight(cfg.Files.PublicURL, "/")+"/", cfg.Files.RootDir)
	documentService := services.NewDocumentService(store, audit, services.NewVerificationChecker(inspector), files, m, logger)
	documentService.Promoter = kycService

	queue := services.NewVerificationQueue(func(ctx context.Context, id int64) error {
		_, err := documentService.Verify(ctx, id)
		return err
	}, cfg.Verification.Workers, cfg.Verification.QueueSize, cfg.Verification.FetchTimeout*2, logger, m)
	documentService.Dispatcher = queue
	queue.Start(ctx)
	defer queue.Stop()

	otpService := services.NewOTPService(store, audit, mobizonClient, emailService, m, logger)
	otpService.Limiter = limiter
	otpService.TTL = cfg.OTP.TTL
	otpService.MaxAttempts = cfg.OTP.MaxAttempts
	otpService.MaxSends = cfg.OTP.MaxSends
	otpService.SendWindow = cfg.OTP.SendWindow

	// === Gin ===
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.ZapLogger(logger, m))
	router.Use(middleware.CORS())
	if serveLocal && strings.HasPrefix(cfg.Files.PublicURL, "/") {
		router.Static(cfg.Files.PublicURL, cfg.Files.RootDir)
	}

	routes.SetupRoutes(router, routes.Handlers{
		Health:        handlers.NewHealthHandler(health),
		Profile:       handlers.NewProfileHandler(profileService),
		Document:      handlers.NewDocumentHandler(documentService),
		Verify:        handlers.NewVerifyHandler(otpService),
		KYC:           handlers.NewKYCHandler(kycService, profileService, documentService, audit, userService, pdf.NewReportGenerator(cfg.PDF.FontPath)),
		Notifications: handlers.NewNotificationHandler(notifications),
		Metrics:       m.Handler(),
	}, []byte(cfg.Auth.JWTSecret))

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("db", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.c.Ping(ctx).Err() }
