package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/gamevault/internal/source"
)

// WatchConfig configures the folder watcher.
type WatchConfig struct {
	WatchDir     string         // Directory to watch for PGN files
	ProcessedDir string         // Directory to move processed files to
	PollInterval time.Duration  // How often to check for new files
	Logger       zerolog.Logger // Logger
}

// Watcher polls a folder and ingests the PGN files that appear in it.
type Watcher struct {
	cfg WatchConfig
	p   *Pipeline
	log zerolog.Logger
}

// ErrNoWatchDir is returned when the watcher has no directory.
var ErrNoWatchDir = errors.New("watch dir is required")

// NewWatcher creates a folder watcher.
func NewWatcher(cfg WatchConfig, p *Pipeline) (*Watcher, error) {
	if cfg.WatchDir == "" {
		return nil, ErrNoWatchDir
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.WatchDir, "processed")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}

	// Ensure directories exist
	if err := os.MkdirAll(cfg.WatchDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ProcessedDir, 0755); err != nil {
		return nil, err
	}

	return &Watcher{cfg: cfg, p: p, log: cfg.Logger}, nil
}

// Run scans immediately and then every poll interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().
		Str("watch_dir", w.cfg.WatchDir).
		Str("processed_dir", w.cfg.ProcessedDir).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("ingest watcher started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("process files failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanOnce processes the PGN files currently in the watch directory and
// moves those that reached Done to the processed directory.
func (w *Watcher) ScanOnce(ctx context.Context) ([]FileOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !source.IsPGNFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.cfg.WatchDir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, nil
	}

	// Sort by name to process in order
	sort.Strings(paths)
	w.log.Info().Int("files", len(paths)).Msg("found PGN files to process")

	outcomes, err := w.p.ProcessFiles(ctx, paths)

	var processed, failed int
	for _, o := range outcomes {
		if o.State != StateDone {
			failed++
			continue
		}
		name := filepath.Base(o.Path)
		dest := filepath.Join(w.cfg.ProcessedDir, name)
		if err := os.Rename(o.Path, dest); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("move to processed failed")
		} else {
			w.log.Info().Str("file", name).Msg("moved to processed")
		}
		processed++
	}
	w.log.Info().Int("processed", processed).Int("failed", failed).Msg("scan complete")
	return outcomes, err
}
