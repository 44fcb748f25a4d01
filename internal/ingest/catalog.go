package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/freeeve/gamevault/internal/source"
)

// ProcessCatalog lists src, downloads each archive to the temp dir under the
// Downloads gate and ingests it under the Files gate, so at most
// MaxOpenFiles archives are being ingested at once. Downloads are retried on any error except
// cancellation; a download that still fails is reported as a failed file.
// Temp files are removed best-effort.
func (p *Pipeline) ProcessCatalog(ctx context.Context, src source.Source) ([]FileOutcome, error) {
	archives, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	p.log.Info().Int("archives", len(archives)).Msg("found archives to process")

	outcomes := make([]FileOutcome, len(archives))
	var g errgroup.Group
	g.SetLimit(max(p.gov.Downloads.Size()+p.gov.Files.Size(), 1))
	for i, a := range archives {
		g.Go(func() error {
			outcomes[i] = p.processArchive(ctx, src, a)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, ctx.Err()
}

func (p *Pipeline) processArchive(ctx context.Context, src source.Source, a source.Archive) FileOutcome {
	path, err := p.download(ctx, src, a)
	if err != nil {
		p.metrics.FileFailed()
		p.log.Error().Err(err).Str("archive", a.Filename).Msg("download failed")
		return FileOutcome{Path: a.Filename, State: StatePending, Err: err}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn().Err(err).Str("path", path).Msg("temp file cleanup failed")
		}
	}()

	out, _ := p.processFile(ctx, path, a.Filename)
	out.Path = a.Filename
	return out
}

// download fetches a into a new temp file and returns its path.
func (p *Pipeline) download(ctx context.Context, src source.Source, a source.Archive) (string, error) {
	var path string
	err := p.gov.Downloads.Do(ctx, func() error {
		f, err := os.CreateTemp(p.cfg.TempDir, "gamevault-*-"+a.Filename)
		if err != nil {
			return err
		}
		path = f.Name()
		defer f.Close()

		retries, err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			if err := f.Truncate(0); err != nil {
				return err
			}
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			n, err := src.Fetch(ctx, a, f)
			if err == nil {
				p.log.Debug().Str("archive", a.Filename).Int64("bytes", n).Msg("downloaded")
			}
			return err
		}, func(err error) bool {
			return !errors.Is(err, context.Canceled)
		})
		if retries > 0 {
			p.log.Info().Str("archive", a.Filename).Int("retries", retries).Msg("download retried")
		}
		return err
	})
	if err != nil {
		if path != "" {
			_ = os.Remove(path)
		}
		return "", err
	}
	return path, nil
}
