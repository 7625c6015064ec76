package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/splitopus/splitopus/internal/auth"
	"github.com/splitopus/splitopus/internal/config"
	"github.com/splitopus/splitopus/internal/httpapi"
	"github.com/splitopus/splitopus/internal/metrics"
	"github.com/splitopus/splitopus/internal/middleware"
	"github.com/splitopus/splitopus/internal/notify"
	"github.com/splitopus/splitopus/internal/service"
	"github.com/splitopus/splitopus/internal/settlement"
	"github.com/splitopus/splitopus/internal/storage/sqlite"
	"github.com/splitopus/splitopus/internal/telegram"
	"github.com/splitopus/splitopus/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Storage initialized", "database", cfg.DBPath)

	m := metrics.New()
	engine := settlement.NewEngine(
		settlement.WithEmptySplitPolicy(cfg.SplitPolicy()),
		settlement.WithLogger(logger),
	)

	svcOpts := []service.Option{service.WithRecorder(m), service.WithLogger(logger)}
	apiOpts := []httpapi.Option{httpapi.WithMetrics(m.Handler()), httpapi.WithLogger(logger)}

	var cooldown notify.Cooldown = notify.NewMemoryCooldown()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		redisCooldown := notify.NewRedisCooldown(rdb)
		cooldown = redisCooldown
		apiOpts = append(apiOpts, httpapi.WithHealthCheck("redis", redisCooldown))
		logger.Info("Redis cooldown enabled", "addr", cfg.RedisAddr)
	}

	if cfg.TelegramBotToken != "" {
		client := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramBotToken, telegram.WithLogger(logger))
		notifier := notify.NewNotifier(client,
			notify.WithCooldown(cooldown, cfg.NotifyCooldown),
			notify.WithRecorder(m),
			notify.WithLogger(logger),
		)
		svcOpts = append(svcOpts, service.WithNotifier(notifier))
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications and sign-in disabled")
	}

	svc := service.NewTripService(store, engine, svcOpts...)

	if cfg.ReminderSchedule != "" && cfg.TelegramBotToken != "" {
		scheduler, err := notify.NewScheduler(cfg.ReminderSchedule, svc, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET not set, using a random secret; sessions end on restart")
	}
	tokens := auth.NewJWTManager(secret, cfg.JWTTTL)
	authn := auth.NewTelegramAuthenticator(
		auth.NewInitDataValidator(cfg.TelegramBotToken, cfg.InitDataMaxAge),
		tokens,
		store,
	)

	api := httpapi.NewHandler(svc, authn, tokens, apiOpts...)
	handler := middleware.Chain(api.Routes(),
		middleware.Logging(logger, m),
		middleware.CORS(cfg.AllowedOrigin),
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Addr(), "environment", cfg.Environment)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	svc.Wait()
	return nil
}
