package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/kinna/kinna-backend/internal/handlers"
	httpmw "github.com/kinna/kinna-backend/internal/http/middleware"
	"github.com/kinna/kinna-backend/internal/mailer"
	"github.com/kinna/kinna-backend/internal/migrations"
	"github.com/kinna/kinna-backend/internal/repository"
	"github.com/kinna/kinna-backend/internal/repository/memory"
	"github.com/kinna/kinna-backend/internal/service"
	"github.com/kinna/kinna-backend/internal/verification"
	"github.com/kinna/kinna-backend/pkg/auth"
	"github.com/kinna/kinna-backend/pkg/config"
	"github.com/kinna/kinna-backend/pkg/database"
	"github.com/kinna/kinna-backend/pkg/events"
	"github.com/kinna/kinna-backend/pkg/logger"
	mw "github.com/kinna/kinna-backend/pkg/middleware"
)

const serviceName = "kinna-api"

type stores struct {
	users         repository.UserRepository
	codes         repository.VerificationRepository
	social        repository.SocialRepository
	notifications repository.NotificationRepository
	close         func()
}

func main() {
	if err := run(); err != nil {
		logger.Error("Api exited", "error", err)
		os.Exit(1)
	}
}

// run owns every resource so its deferred closes execute before main exits.
func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, cfg.Server.LogLevel))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Database.Driver, err)
	}
	defer st.close()

	var bus events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		bus = nb
	}
	defer bus.Close()

	transport, err := mailer.NewTransport(cfg.Email)
	if err != nil {
		return fmt.Errorf("configure %s email transport: %w", cfg.Email.Driver, err)
	}

	var throttle func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		limiter := httpmw.NewRateLimiter(rdb, httpmw.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		})
		throttle = limiter.Middleware()
	} else {
		logger.Warn("Request throttle disabled", "redis_configured", cfg.Redis.URL != "")
	}

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	ledger := verification.NewLedger(st.codes, cfg.Auth.CodeTTL, cfg.Auth.ResendInterval)

	authService := service.NewAuthService(st.users, ledger, mailer.New(transport), issuer, bus, cfg.Email.SendTimeout)
	userService := service.NewUserService(st.users, st.social, bus)
	notificationService := service.NewNotificationService(st.notifications)

	h := handlers.New(authService, userService, notificationService, issuer, throttle)
	metrics := mw.NewMetrics()

	r := chi.NewRouter()
	if cfg.RateLimit.TrustProxy {
		// Only behind a proxy that overwrites X-Forwarded-For; otherwise clients pick their own throttle key.
		r.Use(chimw.RealIP)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName(serviceName))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(metrics.Handler)

	r.Mount("/api", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down api...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Api shutdown error", "error", err)
		}
		close(idle)
	}()

	logger.Info("Starting api", "port", cfg.Server.Port, "env", cfg.Server.Env, "store", cfg.Database.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	<-idle
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		m := memory.New()
		return &stores{
			users:         m.Users(),
			codes:         m.Codes(),
			social:        m.Social(),
			notifications: m.Notifications(),
			close:         func() {},
		}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, migrations.FS); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	return &stores{
		users:         repository.NewUserRepository(pool),
		codes:         repository.NewVerificationRepository(pool),
		social:        repository.NewSocialRepository(pool),
		notifications: repository.NewNotificationRepository(pool),
		close:         pool.Close,
	}, nil
}
