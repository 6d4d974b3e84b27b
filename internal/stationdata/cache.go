package stationdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skyfront-data/shower.report/internal/monitoring"
)

// ErrNotCached is returned in local-only mode when the requested data has
// never been fetched.
var ErrNotCached = errors.New("not in local cache")

// FileCache decorates a Source with a local file store under Dir. The cache
// never expires on its own: station metadata changes rarely and a stale copy
// beats no copy during offline analysis.
type FileCache struct {
	inner Source
	dir   string

	// ForceFresh bypasses cached copies and always refetches.
	ForceFresh bool
	// LocalOnly never touches the network; missing data is ErrNotCached.
	LocalOnly bool
}

// NewFileCache creates a cache decorator storing fetched data under dir.
func NewFileCache(inner Source, dir string) *FileCache {
	return &FileCache{inner: inner, dir: dir}
}

func (c *FileCache) StationNumbers(ctx context.Context) ([]int, error) {
	var numbers []int
	err := c.through("stations.json",
		func(data []byte) error { return json.Unmarshal(data, &numbers) },
		func() ([]byte, error) {
			fresh, err := c.inner.StationNumbers(ctx)
			if err != nil {
				return nil, err
			}
			numbers = fresh
			return json.Marshal(fresh)
		})
	return numbers, err
}

func (c *FileCache) StationInfo(ctx context.Context, number int) (StationInfo, error) {
	var info StationInfo
	err := c.through(fmt.Sprintf("station_%d.json", number),
		func(data []byte) error { return json.Unmarshal(data, &info) },
		func() ([]byte, error) {
			fresh, err := c.inner.StationInfo(ctx, number)
			if err != nil {
				return nil, err
			}
			info = fresh
			return json.Marshal(fresh)
		})
	return info, err
}

func (c *FileCache) DetectorTimingOffsets(ctx context.Context, number int) ([]TimingOffsetRecord, error) {
	var records []TimingOffsetRecord
	err := c.through(filepath.Join("detector_timing_offsets", fmt.Sprintf("%d.tsv", number)),
		func(data []byte) error {
			parsed, err := ParseTimingOffsets(bytes.NewReader(data))
			if err != nil {
				return err
			}
			records = parsed
			return nil
		},
		func() ([]byte, error) {
			fresh, err := c.inner.DetectorTimingOffsets(ctx, number)
			if err != nil {
				return nil, err
			}
			records = fresh
			var buf bytes.Buffer
			if err := FormatTimingOffsets(&buf, fresh); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		})
	return records, err
}

// through is the read-through path: serve the local file unless a fresh copy
// is demanded, fetch and store otherwise. A failed fetch falls back to the
// local copy when one exists.
func (c *FileCache) through(name string, load func([]byte) error, fetch func() ([]byte, error)) error {
	path := filepath.Join(c.dir, name)
	local, localErr := os.ReadFile(path)
	haveLocal := localErr == nil

	if c.LocalOnly {
		if !haveLocal {
			return fmt.Errorf("%w: %s", ErrNotCached, name)
		}
		return load(local)
	}
	if haveLocal && !c.ForceFresh {
		return load(local)
	}

	data, err := fetch()
	if err != nil {
		if haveLocal {
			monitoring.Logf("fetch %s failed (%v), serving cached copy", name, err)
			return load(local)
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write cache file %s: %w", name, err)
	}
	return nil
}
