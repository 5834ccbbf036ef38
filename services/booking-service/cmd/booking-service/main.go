package main

import (
	"context"
	"net/http"
	"time"

	"github.com/barberline/barbershop/libs/db"
	"github.com/barberline/barbershop/libs/httpx"
	"github.com/barberline/barbershop/libs/kafkax"
	otelx "github.com/barberline/barbershop/libs/otel"
	"github.com/barberline/barbershop/libs/runtime"
	"github.com/barberline/barbershop/services/booking-service/internal/accounts"
	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/handlers"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	catalog, err := slots.New(cfg.Catalog)
	if err != nil {
		logger.Error("invalid slot catalog", "err", err)
		panic(err)
	}

	var (
		store  storage.Store
		checks []runtime.ReadyCheck
	)
	switch cfg.StorageDriver {
	case driverMemory:
		logger.Warn("using in-memory storage; data is lost on restart and no events are published")
		store = storage.NewMemory()
	default:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		outboxRepo := outbox.NewRepository(pool)
		pg := storage.NewPostgres(pool, outboxRepo)
		if cfg.AutoMigrate {
			applied, err := pg.Migrate(ctx)
			if err != nil {
				logger.Error("migration failed", "err", err)
				panic(err)
			}
			logger.Info("migrations applied", "count", applied)
		}
		store = pg

		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)

		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if len(cfg.KafkaBrokers) > 0 {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		}
	}

	publicLimit := httpx.NewRateLimiter(cfg.RateLimit, time.Minute).Middleware()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		publicLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, "booking:ratelimit").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	resolver := availability.NewResolver(store, catalog, cfg.Policy, time.Now)
	bookingSvc := booking.NewService(store, resolver, logger, booking.Config{StrictStatusTransitions: cfg.Strict}, time.Now)
	accountSvc := accounts.NewService(store, cfg.JWTSecret, cfg.TokenTTL, time.Now)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Routes{
		Bookings:     handlers.NewBookingHandler(bookingSvc, logger),
		Auth:         handlers.NewAuthHandler(accountSvc, logger),
		JWTSecret:    cfg.JWTSecret,
		PublicWrites: publicLimit,
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting",
			"addr", srv.Addr,
			"storage", cfg.StorageDriver,
			"timezone", cfg.Policy.Location.String(),
			"slots", catalog.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
