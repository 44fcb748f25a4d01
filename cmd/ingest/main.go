package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/freeeve/gamevault/internal/codec"
	"github.com/freeeve/gamevault/internal/config"
	"github.com/freeeve/gamevault/internal/eco"
	"github.com/freeeve/gamevault/internal/governor"
	"github.com/freeeve/gamevault/internal/httpapi"
	"github.com/freeeve/gamevault/internal/identity"
	"github.com/freeeve/gamevault/internal/ingest"
	"github.com/freeeve/gamevault/internal/logx"
	"github.com/freeeve/gamevault/internal/metrics"
	"github.com/freeeve/gamevault/internal/parse"
	"github.com/freeeve/gamevault/internal/persist"
	"github.com/freeeve/gamevault/internal/source"
	"github.com/freeeve/gamevault/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("GAMEVAULT_CONFIG"), "YAML config file")
		watch       = flag.Bool("watch", false, "Watch watch_dir for new PGN files")
		catalog     = flag.Bool("catalog", false, "Download and ingest every archive listed at catalog_url")
		pollEvery   = flag.Duration("poll", 10*time.Second, "Watch poll interval")
		metricsPath = flag.String("metrics-out", "", "Write a JSON metrics snapshot here on exit")
		statusAddr  = flag.String("status-addr", "", "Serve status endpoints on this address (e.g. :8080)")

		driver   = flag.String("driver", "", "Override database_driver (postgres or sqlite)")
		dbURL    = flag.String("db", "", "Override database_url")
		watchDir = flag.String("watch-dir", "", "Override watch_dir")
		workers  = flag.Int("workers", -1, "Override worker_pool_size")
		logLevel = flag.String("log-level", "", "Override log_level")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *driver != "" {
		cfg.DatabaseDriver = *driver
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}
	if *watchDir != "" {
		cfg.WatchDir = *watchDir
	}
	if *workers >= 0 {
		cfg.WorkerPoolSize = *workers
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if !*watch && !*catalog && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: ingest [-config file.yaml] (-watch | -catalog | <file.pgn[.zst]>...)")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger, err := logx.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	failed, err := run(ctx, cfg, logger, runMode{
		watch:       *watch,
		catalog:     *catalog,
		poll:        *pollEvery,
		files:       flag.Args(),
		metricsPath: *metricsPath,
		statusAddr:  *statusAddr,
	})
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("ingest stopped")
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

type runMode struct {
	watch       bool
	catalog     bool
	poll        time.Duration
	files       []string
	metricsPath string
	statusAddr  string
}

// run wires the pipeline and returns the number of files that failed.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, mode runMode) (int, error) {
	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.DatabaseDriver,
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return 0, fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	var openings *eco.Database
	if cfg.ECODir != "" {
		openings = eco.NewDatabase()
		if err := openings.LoadDir(cfg.ECODir); err != nil {
			return 0, fmt.Errorf("load eco: %w", err)
		}
		logger.Info().Int("openings", openings.Count()).Str("dir", cfg.ECODir).Msg("loaded ECO database")
	}

	gov := governor.New(cfg.GovernorConfig())
	m := metrics.New()
	policy := cfg.RetryPolicy()

	pool, err := parse.NewPool(parse.PoolConfig{
		Workers: gov.Workers.Size(),
		ECO:     openings,
		Gate:    gov.Workers,
		Logger:  logger,
	})
	if err != nil {
		return 0, err
	}
	resolver, err := identity.New(db, identity.Config{
		Parallelism: cfg.ResolveParallelism,
		Redis:       rdb,
		Retry:       policy,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		return 0, err
	}
	writer := persist.New(db, persist.Config{
		SubBatchSize: cfg.DBSubBatchSize,
		Retry:        policy,
		Metrics:      m,
		Logger:       logger,
	})
	pipeline, err := ingest.New(ingest.Config{
		ChunkSize: cfg.ChunkSize,
		TempDir:   cfg.TempDir,
		Retry:     policy,
		Logger:    logger,
	}, ingest.Deps{
		Governor: gov,
		Pool:     pool,
		Resolver: resolver,
		Writer:   writer,
		Codec:    codec.New(codec.DefaultCacheSize),
		Metrics:  m,
	})
	if err != nil {
		return 0, err
	}

	logger.Info().
		Str("driver", string(db.Dialect())).
		Int("max_open_files", gov.Files.Size()).
		Int("download_concurrency", gov.Downloads.Size()).
		Int("workers", gov.Workers.Size()).
		Int("db_conns", db.MaxOpenConns()).
		Bool("redis", rdb != nil).
		Msg("starting ingest")

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go m.Report(reportCtx, logger, cfg.ReportInterval)

	if mode.statusAddr != "" {
		srv := &http.Server{
			Addr:              mode.statusAddr,
			Handler:           httpapi.NewRouter(logger, m, gov, db),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", mode.statusAddr).Msg("status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("status server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	defer func() {
		m.Log(logger)
		if st, err := db.Stats(context.WithoutCancel(ctx)); err == nil {
			logger.Info().Int64("games", st.Games).Int64("players", st.Players).Msg("store totals")
		}
		if mode.metricsPath != "" {
			if err := m.WriteFile(mode.metricsPath); err != nil {
				logger.Warn().Err(err).Msg("write metrics")
			}
		}
	}()

	var outcomes []ingest.FileOutcome
	switch {
	case mode.watch:
		w, err := ingest.NewWatcher(ingest.WatchConfig{
			WatchDir:     cfg.WatchDir,
			PollInterval: mode.poll,
			Logger:       logger,
		}, pipeline)
		if err != nil {
			return 0, err
		}
		return 0, w.Run(ctx)
	case mode.catalog:
		src, err := source.NewHTTPSource(source.HTTPConfig{CatalogURL: cfg.CatalogURL, Logger: logger})
		if err != nil {
			return 0, err
		}
		outcomes, err = pipeline.ProcessCatalog(ctx, src)
		if err != nil && outcomes == nil {
			return 0, err
		}
	default:
		outcomes, err = pipeline.ProcessFiles(ctx, mode.files)
		if err != nil && outcomes == nil {
			return 0, err
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.State != ingest.StateDone {
			failed++
			logger.Warn().Err(o.Err).Str("file", o.Path).Str("state", o.State.String()).Msg("file not completed")
		}
	}
	return failed, ctx.Err()
}
