package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"pricewatch/catalog"
	"pricewatch/config"
	"pricewatch/core"
	"pricewatch/executor"
	"pricewatch/extract"
	"pricewatch/fetch"
	"pricewatch/logging"
	"pricewatch/metrics"
	"pricewatch/queue"
	"pricewatch/ratelimit"
	"pricewatch/rules"
	"pricewatch/scheduler"
	"pricewatch/store"
	"pricewatch/worker"
)

// deps holds everything the composition root builds exactly once and
// wires together; each subcommand uses the slice it actually needs.
type deps struct {
	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Registry
	pgPool   *pgxpool.Pool
	rdb      *goredis.Client
	trackers *store.TrackerStore
	history  *store.PriceHistoryStore
	q        *queue.Queue
	gov      *ratelimit.Governor
	exec     *executor.Executor
	sched    *scheduler.Scheduler
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("pricewatch: build logger: %w", err)
	}

	pgPool, err := store.Open(ctx, cfg.PostgresDSN, 10)
	if err != nil {
		return nil, fmt.Errorf("pricewatch: open postgres: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pricewatch: ping redis: %w", err)
	}

	metricsReg := metrics.New()

	trackers := store.NewTrackerStore(pgPool)
	history := store.NewPriceHistoryStore(pgPool)
	q := queue.New(rdb, queue.BackoffPolicy{Base: cfg.BaseBackoff, Max: cfg.MaxBackoff, HardMax: cfg.HardFailMaxBackoff}).WithMetrics(metricsReg)
	gov := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.GlobalConcurrency, cfg.RateLimitWaitCap).WithMetrics(metricsReg)

	httpFetcher := fetch.NewHttpFetcher(fetch.HttpFetcherConfig{Timeout: cfg.HTTPTimeout})
	var browserFetcher *fetch.BrowserFetcher
	if cfg.AllowBrowserFallback {
		browserFetcher = fetch.NewBrowserFetcher(fetch.BrowserFetcherConfig{
			Timeout:     cfg.BrowserTimeout,
			NetworkIdle: cfg.BrowserNetworkIdle,
		})
	}
	registry := extract.NewRegistry(&extract.GenericAdapter{DefaultCurrency: "USD"})

	ex := executor.New(httpFetcher, browserWrapper(browserFetcher), registry).WithMetrics(metricsReg)
	ex.AllowedHosts = allowedHostSet(cfg.DomainAllowlist, cfg.DomainAllowlistEnabled)

	sched := scheduler.New(trackers, q, rdb, scheduler.Config{
		DefaultInterval:       cfg.DefaultCheckInterval,
		FailureStreakLimit:    cfg.FailureStreakLimit,
		TickInterval:          cfg.SchedulerTick,
		BatchLimit:            cfg.SchedulerBatchLimit,
		AllowBrowserByDefault: cfg.AllowBrowserFallback,
		MaxAttempts:           cfg.MaxAttempts,
	})

	return &deps{
		cfg: cfg, log: log, metrics: metricsReg, pgPool: pgPool, rdb: rdb,
		trackers: trackers, history: history, q: q, gov: gov, exec: ex, sched: sched,
	}, nil
}

// browserWrapper returns nil as an executor.BrowserFetcher when b is nil,
// since a (*fetch.BrowserFetcher)(nil) held in an executor.BrowserFetcher
// interface value would be non-nil and wrongly attempted.
func browserWrapper(b *fetch.BrowserFetcher) executor.BrowserFetcher {
	if b == nil {
		return nil
	}
	return b
}

func allowedHostSet(hosts []string, enabled bool) map[string]struct{} {
	if !enabled || len(hosts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return set
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.pgPool.Close()
	defer d.rdb.Close()
	defer d.log.Sync()

	metricsServer := &http.Server{Addr: d.cfg.MetricsAddr, Handler: d.metrics.Handler()}

	pool := worker.New(d.q, d.trackers, d.history, d.gov, d.exec, d.sched, worker.Config{
		NumWorkers:        d.cfg.NumWorkers,
		VisibilityTimeout: d.cfg.VisibilityTimeout,
		JobDeadline:       d.cfg.JobDeadline,
		PollInterval:      d.cfg.PollInterval,
		MaxAttemptsCap:    d.cfg.MaxAttempts,
	}).WithMetrics(d.metrics)

	d.log.Info("starting pricewatch: %d workers, metrics on %s", d.cfg.NumWorkers, d.cfg.MetricsAddr)

	serverErr := make(chan error, 2)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		// returns on ctx.Err() or on the first tick error; a tick error
		// stops scheduling but does not stop the pool or the server
		d.sched.Run(ctx)
	}()
	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received, draining")
	case err := <-serverErr:
		d.log.Error("server error: %v", err)
		stop()
	}
	<-poolDone // workers finish their current job before returning

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		d.log.Error("metrics server shutdown: %v", err)
	}
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("applying migrations from %s", cfg.MigrationDir)
	if err := store.RunMigrations(cfg.MigrationDir, cfg.PostgresDSN); err != nil {
		return fmt.Errorf("pricewatch: migrate: %w", err)
	}
	log.Info("migrations applied")
	return nil
}

type trackArgs struct {
	productID      string
	url            string
	competitorName string
	active         bool
	now            bool
}

func runTrack(ctx context.Context, args trackArgs) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.pgPool.Close()
	defer d.rdb.Close()
	defer d.log.Sync()

	productID, err := uuid.Parse(args.productID)
	if err != nil {
		return fmt.Errorf("pricewatch: invalid product id: %w", err)
	}

	svc := &core.Service{
		Trackers:     d.trackers,
		Sched:        d.sched,
		AllowedHosts: allowedHostSet(d.cfg.DomainAllowlist, d.cfg.DomainAllowlistEnabled),
		MaxAttempts:  d.cfg.MaxAttempts,
	}

	tracker, created, err := svc.TrackCompetitor(ctx, core.TrackInput{
		ProductID:      productID,
		CompetitorName: args.competitorName,
		RawURL:         args.url,
		Active:         args.active,
		EnqueueScrape:  args.now,
	})
	if err != nil {
		return fmt.Errorf("pricewatch: track: %w", err)
	}

	verb := "reused existing"
	if created {
		verb = "created"
	}
	d.log.Info("%s tracker %s for product %s -> %s", verb, tracker.ID, tracker.ProductID, tracker.CanonicalURL)
	return nil
}

type fetchNowArgs struct {
	url          string
	productID    string
	trackerID    string
	allowBrowser bool
}

func runFetchNow(ctx context.Context, args fetchNowArgs) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.pgPool.Close()
	defer d.rdb.Close()
	defer d.log.Sync()

	var productID uuid.UUID
	if args.productID != "" {
		productID, err = uuid.Parse(args.productID)
		if err != nil {
			return fmt.Errorf("pricewatch: invalid product id: %w", err)
		}
	}
	var trackerID *uuid.UUID
	if args.trackerID != "" {
		id, err := uuid.Parse(args.trackerID)
		if err != nil {
			return fmt.Errorf("pricewatch: invalid tracker id: %w", err)
		}
		trackerID = &id
	}

	svc := &core.Service{Trackers: d.trackers, History: d.history, Exec: d.exec, MaxAttempts: d.cfg.MaxAttempts}
	out, err := svc.FetchNow(ctx, core.FetchNowInput{
		URL: args.url, ProductID: productID, TrackerID: trackerID, AllowBrowserFallback: args.allowBrowser,
	})
	if err != nil {
		return fmt.Errorf("pricewatch: fetch now: %w", err)
	}

	if out.IsSuccess() {
		d.log.Info("SUCCESS price=%d %s via %s (adapter=%s, confidence=%.2f)",
			out.Signal.PriceCents, out.Signal.Currency, out.Signal.ExtractedFrom, out.Signal.AdapterID, out.Signal.Confidence)
		return nil
	}
	d.log.Warn("%s: %s", out.Kind, out.Detail)
	return nil
}

func runRecommend(ctx context.Context, catalogPath, productIDRaw string) error {
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	productID, err := uuid.Parse(productIDRaw)
	if err != nil {
		return fmt.Errorf("pricewatch: invalid product id: %w", err)
	}

	snap, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return err
	}

	pgPool, err := store.Open(ctx, cfg.PostgresDSN, 5)
	if err != nil {
		return fmt.Errorf("pricewatch: open postgres: %w", err)
	}
	defer pgPool.Close()
	history := store.NewPriceHistoryStore(pgPool)

	svc := &core.Service{
		Products:    snap,
		Rules:       snap,
		History:     history,
		MaxAttempts: cfg.MaxAttempts,
		RuleConfig: rules.Config{
			DefaultMaxChangePct: cfg.MaxChangePct,
			DefaultMinMarginPct: cfg.MinMarginPct,
			CompetitiveWeight:   cfg.CompetitiveWeight,
			HistoryWindow:       cfg.HistoryWindow,
		},
	}

	rec, err := svc.GetRecommendation(ctx, productID)
	if err != nil {
		return fmt.Errorf("pricewatch: recommend: %w", err)
	}

	log.Info("product %s: current=%d suggested=%d reason=%q (competitors=%d)",
		rec.ProductID, rec.CurrentPriceCents, rec.SuggestedPriceCents, rec.Reason, rec.CompetitorCount)
	return nil
}
