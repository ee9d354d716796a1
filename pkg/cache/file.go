package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileCache stores one JSON document per key in a directory
type FileCache struct {
	mu   sync.Mutex
	dir  string
	opts Options
}

// NewFileCache creates the cache directory if needed
func NewFileCache(dir string, opts Options) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{dir: dir, opts: opts.withDefaults()}, nil
}

func (f *FileCache) Backend() string { return "file" }

func (f *FileCache) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FileCache) read(key string) (*Entry, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache file: %w", err)
	}
	return &e, nil
}

func (f *FileCache) Get(ctx context.Context, key string) (*Entry, bool) {
	e, err := f.read(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.opts.Logger.WithError(err).WarnWithFields("Cache read failed, treating as miss", map[string]interface{}{
				"key": key,
			})
			observe(f.opts.Logger, f.Backend(), key, "error")
			return nil, false
		}
		observe(f.opts.Logger, f.Backend(), key, "miss")
		return nil, false
	}
	if !f.opts.fresh(e) {
		observe(f.opts.Logger, f.Backend(), key, "stale")
		return nil, false
	}
	observe(f.opts.Logger, f.Backend(), key, "hit")
	return e, true
}

func (f *FileCache) Peek(ctx context.Context, key string) (*Entry, bool) {
	e, err := f.read(key)
	if err != nil {
		return nil, false
	}
	return e, true
}

// Put writes to a temp file and renames it over the target so readers never
// observe a partial document.
func (f *FileCache) Put(ctx context.Context, key, source string, data json.RawMessage) error {
	entry := Entry{Data: data, Source: source, Timestamp: f.opts.Clock.Now()}
	encoded, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path(key)); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

func (f *FileCache) Invalidate(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileCache) InvalidateAll(ctx context.Context) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
