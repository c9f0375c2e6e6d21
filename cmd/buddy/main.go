package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/buddy/internal/app"
	"github.com/p-blackswan/buddy/internal/config"
	"github.com/p-blackswan/buddy/internal/health"
	"github.com/p-blackswan/buddy/internal/i18n"
	"github.com/p-blackswan/buddy/internal/kv"
	"github.com/p-blackswan/buddy/internal/llm"
	"github.com/p-blackswan/buddy/internal/metrics"
	"github.com/p-blackswan/buddy/internal/server"
	"github.com/p-blackswan/buddy/internal/toast"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = logger

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("db_path", cfg.DBPath).
		Bool("offline", cfg.Offline()).
		Msg("starting buddy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	store, err := kv.OpenSQLite(cfg.DBPath, cfg.Namespace, logger, kv.WithCacheSize(cfg.CacheSize))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	var provider llm.Provider
	if !cfg.Offline() {
		opts := []llm.AnthropicOption{
			llm.WithModel(cfg.LLMModel),
			llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
			llm.WithLogger(logger),
		}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.LLMBaseURL))
		}
		p := llm.NewAnthropicProvider(cfg.LLMAPIKey, opts...)
		provider = p
		logger.Info().Str("model", p.ModelID()).Msg("text generation enabled")
	} else {
		logger.Info().Msg("no LLM API key configured, serving fallback content only")
	}

	var source i18n.Source = i18n.DirSource{Dir: cfg.LocalesDir}
	if cfg.LocalesURL != "" {
		source = i18n.NewHTTPSource(cfg.LocalesURL)
	}

	m := metrics.New()

	buddy, err := app.New(ctx, app.Deps{
		Store:             store,
		Provider:          provider,
		Translations:      source,
		Metrics:           m,
		Logger:            logger,
		PointsPerActivity: cfg.PointsPerActivity,
		StoryMinTurns:     cfg.StoryMinTurns,
		ToastOptions:      []toast.Option{toast.WithDuration(cfg.ToastDuration)},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize app")
	}

	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if err := buddy.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("translations", func(context.Context) health.Status {
		if buddy.TranslationsLoaded() {
			return health.StatusOK
		}
		return health.StatusDegraded
	})

	localesDir := ""
	if cfg.LocalesURL == "" {
		localesDir = cfg.LocalesDir
	}
	srv := server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		LocalesDir:  localesDir,
		RateLimit: server.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
	}, buddy, checker, m, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-ctx.Done():
	}
	cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("buddy stopped")
}
