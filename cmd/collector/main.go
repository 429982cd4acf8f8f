package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/api"
	"github.com/user/seller-collector/internal/backoff"
	"github.com/user/seller-collector/internal/classify"
	"github.com/user/seller-collector/internal/collector"
	"github.com/user/seller-collector/internal/config"
	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/export"
	"github.com/user/seller-collector/internal/monitoring"
	"github.com/user/seller-collector/internal/scrape"
	"github.com/user/seller-collector/internal/session"
	"github.com/user/seller-collector/internal/storage"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	// Session store: encrypted records over the configured KV backend.
	var kv session.KV
	var redisKV *storage.RedisKV
	if cfg.SessionBackend == "redis" {
		redisKV = storage.NewRedisKV(cfg.RedisAddr)
		kv = redisKV
	} else {
		kv = session.NewFileKV(cfg.SessionDir)
	}
	store, err := session.NewStore(kv, []byte(cfg.SessionKey), logger)
	if err != nil {
		logger.Fatal("could not initialize session store", zap.Error(err))
	}

	loginPolicy := backoff.Policy{
		Base:        time.Duration(cfg.LoginBackoffBaseSecs) * time.Second,
		MaxAttempts: cfg.MaxRetries,
	}
	fetchPolicy := backoff.Policy{
		Base:        time.Duration(cfg.FetchBackoffBaseSecs) * time.Second,
		MaxAttempts: cfg.MaxRetries,
	}
	sessions := session.NewManager(store, loginPolicy, metrics, logger)

	// Browsers: rapras is direct, yahoo goes through the authenticated proxy.
	raprasBrowser := scrape.NewBrowser(ctx, cfg.Headless, nil)
	defer raprasBrowser.Close()
	yahooBrowser := scrape.NewBrowser(ctx, cfg.Headless, &scrape.ProxyConfig{
		URL:      cfg.ProxyURL,
		Username: cfg.ProxyUsername,
		Password: cfg.ProxyPassword,
		ExpectIP: cfg.ProxyExpectIP,
	})
	defer yahooBrowser.Close()

	rapras := scrape.NewRaprasClient(raprasBrowser, cfg.RaprasBaseURL, cfg.RaprasUsername, cfg.RaprasPassword, logger)
	yahoo := scrape.NewYahooClient(yahooBrowser, cfg.YahooLoginURL, cfg.YahooAuctionsURL, cfg.YahooPhoneNumber,
		scrape.StdinSMSPrompt(cfg.SMSPromptTimeout()), logger)
	sessions.Register("rapras", rapras)
	sessions.Register("yahoo", yahoo)

	var tokenizer classify.Tokenizer
	if kagome, err := classify.NewKagomeTokenizer(); err != nil {
		// Degraded mode: keys fall back to naive splitting for the whole run.
		logger.Error("tokenizer unavailable, running degraded", zap.Error(err))
		metrics.TokenizerDegraded.Inc()
	} else {
		tokenizer = kagome
	}
	classifier := classify.NewGeminiClassifier(cfg.GeminiModel, cfg.CallTimeout(), logger)

	task := collector.NewTask(sessions, "yahoo", yahoo, classifier, tokenizer,
		fetchPolicy, cfg.MaxProductsPerSeller, metrics, logger)
	exporter := export.NewCSVExporter(cfg.OutputDir, logger)
	orchestrator := collector.NewOrchestrator(task, exporter, metrics, logger,
		cfg.MaxConcurrentSellers, cfg.MinPrice, cfg.SoftTimeout())

	var runStore *storage.RunStore
	if cfg.PostgresURL != "" {
		runStore, err = storage.NewRunStore(cfg.PostgresURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer runStore.Close()
	}

	// Status/metrics surface stays up for the duration of the job.
	server := api.NewServer(cfg, runStore, redisKV, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()
	logger.Info("status server started", zap.String("port", cfg.ServerPort))

	if err := run(ctx, cfg, logger, sessions, rapras, orchestrator, server, runStore); err != nil {
		logger.Error("collection run aborted", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("collector exiting")
}

func run(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	sessions *session.Manager,
	rapras *scrape.RaprasClient,
	orchestrator *collector.Orchestrator,
	server *api.Server,
	runStore *storage.RunStore,
) error {
	handle, err := sessions.EnsureValid(ctx, "rapras")
	if err != nil {
		return err
	}

	targets, err := rapras.ListSellers(ctx, handle, cfg.StartDate, cfg.EndDate)
	if errors.Is(err, domain.ErrUnauthenticated) {
		// Reactive expiry on the listing step: one re-login, one more try.
		sessions.Invalidate(ctx, "rapras")
		if handle, err = sessions.EnsureValid(ctx, "rapras"); err != nil {
			return err
		}
		targets, err = rapras.ListSellers(ctx, handle, cfg.StartDate, cfg.EndDate)
	}
	if err != nil {
		return err
	}

	run, runErr := orchestrator.Run(ctx, targets)
	if run != nil {
		server.SetLatestRun(run)
		if runStore != nil {
			if err := runStore.SaveRun(ctx, run); err != nil {
				logger.Error("failed to persist run history", zap.Error(err))
			}
		}
	}
	return runErr
}
