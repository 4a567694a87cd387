package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"hntldr/internal/bot"
	"hntldr/internal/config"
	"hntldr/internal/fetcher"
	"hntldr/internal/metrics"
	"hntldr/internal/scheduler"
	"hntldr/internal/scraper"
	"hntldr/internal/storage"
	"hntldr/internal/summarizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	clock := clockwork.NewRealClock()

	store, err := storage.NewSQLiteWithClock(cfg.DatabasePath, clock)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	tg, err := bot.New(cfg.TelegramBotToken, cfg.ChannelID, cfg.RequestTimeout, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	feedOpts := []fetcher.Option{fetcher.WithLimit(cfg.CandidateLimit)}
	if cfg.FeedSource == config.FeedRSS {
		feedOpts = append(feedOpts, fetcher.WithRSSFeed(cfg.FeedRSSURL))
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	reporter := bot.NewAdminReporter(tg, cfg.AdminUserIDs, clock, log)

	deps := scheduler.Deps{
		Feed:       fetcher.New(httpClient, feedOpts...),
		Articles:   scraper.New(httpClient, cfg.MaxArticleChars),
		Summarizer: summarizer.New(newCompleter(cfg, httpClient, log), cfg.LLMMaxTokens, log),
		Publisher:  tg,
		Store:      store,
		Reporter:   reporter,
		Metrics:    m,
		Clock:      clock,
	}

	poller := scheduler.NewPoller(deps, scheduler.PollConfig{
		BatchSize:       cfg.StoriesPerPoll,
		Thresholds:      cfg.Thresholds,
		SummaryMaxChars: cfg.SummaryMaxChars,
		MaxArticleChars: cfg.MaxArticleChars,
		PostDelay:       cfg.PostDelay,
		CallTimeout:     cfg.RequestTimeout,
		Retention:       cfg.Retention,
		Flames:          cfg.Flames,
	}, log.With("cycle", metrics.CyclePoll))

	refresher := scheduler.NewRefresher(deps, scheduler.RefreshConfig{
		Window:      cfg.RefreshWindow,
		MinDelta:    cfg.RefreshMinDelta,
		EditDelay:   scheduler.DefaultEditDelay,
		CallTimeout: cfg.RequestTimeout,
		Flames:      cfg.Flames,
	}, log.With("cycle", metrics.CycleRefresh))

	sched := scheduler.New(log, m, reporter, clock)
	sched.Add(metrics.CyclePoll, cfg.PollInterval, poller.Run)
	sched.Add(metrics.CycleRefresh, cfg.RefreshInterval, refresher.Run)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot",
		"channel", cfg.ChannelID, "llm", cfg.LLMProvider, "model", cfg.LLMModel, "feed", cfg.FeedSource,
		"poll_every", cfg.PollInterval, "refresh_every", cfg.RefreshInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, metrics.Handler(reg), log)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func newCompleter(cfg *config.Config, client *http.Client, log *slog.Logger) summarizer.Completer {
	var c summarizer.Completer
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		c = summarizer.NewOpenAI(cfg.LLMAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL, client)
	default:
		c = summarizer.NewClaude(cfg.LLMAPIKey, cfg.LLMModel, client)
	}
	return summarizer.NewBreaker(c, summarizer.DefaultBreakerSettings(cfg.LLMProvider), log)
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
