package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
)

// Compile-time check to ensure Snapshotter implements SnapshotLoader interface
var _ interfaces.SnapshotLoader = (*Snapshotter)(nil)

const (
	registryFile = "registry.tsv"
	pricesFile   = "prices.tsv"
)

// RegistryFetcher pages the full registry dataset.
type RegistryFetcher interface {
	FetchAll(ctx context.Context, pageSize, maxRows int) ([]entities.RegistryRecord, error)
}

// PriceFetcher pages the full price dataset.
type PriceFetcher interface {
	FetchAll(ctx context.Context, pageSize, maxRows int) ([]entities.PriceRecord, error)
}

// SnapshotOptions configures a Snapshotter.
type SnapshotOptions struct {
	Dir             string
	MaxAge          time.Duration // files younger than this are reused
	PageSize        int
	MaxRegistryRows int
	MaxPriceRows    int
}

// Snapshotter keeps local TSV copies of the datasets and loads them. The
// price file is optional: without it the snapshot has no prices.
type Snapshotter struct {
	registry RegistryFetcher
	prices   PriceFetcher
	opts     SnapshotOptions
}

// NewSnapshotter creates a loader. prices may be nil.
func NewSnapshotter(registry RegistryFetcher, prices PriceFetcher, opts SnapshotOptions) *Snapshotter {
	if opts.Dir == "" {
		opts.Dir = "files"
	}
	return &Snapshotter{registry: registry, prices: prices, opts: opts}
}

// LoadSnapshot refreshes stale files from the datasets and parses them. A
// failed download falls back to the previous file when there is one.
func (s *Snapshotter) LoadSnapshot(ctx context.Context) ([]entities.RegistryRecord, []entities.PriceRecord, error) {
	if err := os.MkdirAll(s.opts.Dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	registryPath := filepath.Join(s.opts.Dir, registryFile)
	if s.stale(registryPath) && s.registry != nil {
		if err := s.downloadRegistry(ctx, registryPath); err != nil {
			if !exists(registryPath) {
				return nil, nil, err
			}
			logging.Warn("Registry download failed, using previous snapshot", "error", err)
		}
	}

	r, err := openDecoded(registryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry snapshot: %w: %w", interfaces.ErrRegistryUnavailable, err)
	}
	records, err := ReadRegistryTSV(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", interfaces.ErrRegistryUnavailable, err)
	}

	return records, s.loadPrices(ctx), nil
}

func (s *Snapshotter) loadPrices(ctx context.Context) []entities.PriceRecord {
	pricesPath := filepath.Join(s.opts.Dir, pricesFile)
	if s.stale(pricesPath) && s.prices != nil {
		if err := s.downloadPrices(ctx, pricesPath); err != nil {
			logging.Warn("Price download failed", "error", err)
		}
	}

	r, err := openDecoded(pricesPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to open price snapshot", "error", err)
		}
		return nil
	}
	rows, err := ReadPricesTSV(r)
	if err != nil {
		logging.Warn("Failed to parse price snapshot", "error", err)
		return nil
	}
	return rows
}

func (s *Snapshotter) stale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return s.opts.MaxAge <= 0 || time.Since(info.ModTime()) > s.opts.MaxAge
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Snapshotter) downloadRegistry(ctx context.Context, path string) error {
	records, err := s.registry.FetchAll(ctx, s.opts.PageSize, s.opts.MaxRegistryRows)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("registry dataset returned no records: %w", interfaces.ErrRegistryUnavailable)
	}
	return writeAtomic(path, func(w io.Writer) error { return WriteRegistryTSV(w, records) })
}

func (s *Snapshotter) downloadPrices(ctx context.Context, path string) error {
	rows, err := s.prices.FetchAll(ctx, s.opts.PageSize, s.opts.MaxPriceRows)
	if err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error { return WritePricesTSV(w, rows) })
}

// writeAtomic writes to a temporary file in the same directory and renames
// it over path, so readers never see a partial snapshot.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove temp file", "file", tmpName, "error", err)
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	logging.Debug(fmt.Sprintf("%s written without errors", path))
	return nil
}
