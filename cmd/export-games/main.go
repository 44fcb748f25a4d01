package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/gamevault/internal/config"
	"github.com/freeeve/gamevault/internal/export"
	"github.com/freeeve/gamevault/internal/logx"
	"github.com/freeeve/gamevault/internal/store"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("GAMEVAULT_CONFIG"), "YAML config file")
		outputPath  = flag.String("output", "-", "Output PGN file (- for stdout, .zst to compress)")
		afterID     = flag.Int64("after", 0, "Export games with id greater than this")
		limit       = flag.Int("limit", 0, "Maximum games to export (0 = all)")
		skipCorrupt = flag.Bool("skip-corrupt", false, "Skip games that fail to decode instead of stopping")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logOut := io.Writer(os.Stdout)
	if *outputPath == "-" {
		logOut = os.Stderr
	}
	logger, err := logx.New(logOut, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.DatabaseDriver,
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	out := io.Writer(os.Stdout)
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("create output file")
		}
		defer f.Close()
		out = f
	}
	if strings.HasSuffix(*outputPath, ".zst") {
		enc, err := zstd.NewWriter(out)
		if err != nil {
			logger.Fatal().Err(err).Msg("zstd writer")
		}
		defer enc.Close()
		out = enc
	}

	exp, err := export.New(db, export.Config{SkipCorrupt: *skipCorrupt, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("create exporter")
	}
	stats, err := exp.Export(ctx, out, *afterID, *limit)
	if err != nil {
		logger.Error().Err(err).Int64("last_id", stats.LastID).Msg("export failed")
		os.Exit(1)
	}
	logger.Info().
		Int("games", stats.Games).
		Int("skipped", stats.Skipped).
		Int64("last_id", stats.LastID).
		Msg("export complete")
}
