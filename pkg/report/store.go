package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
)

// TimestampLayout formats the timestamp part of a report file name
const TimestampLayout = "20060102_150405"

const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Store persists final reports. Saves are append-only: a second save for the
// same key produces a second file.
type Store interface {
	Save(key string, payload interface{}) (string, error)
	SaveError(key string, cause error, meta map[string]interface{}) (string, error)
}

// ErrorRecord is written when a handle could not be processed
type ErrorRecord struct {
	RunID     string                 `json:"run_id"`
	Key       string                 `json:"key"`
	Status    string                 `json:"status"`
	Error     string                 `json:"error"`
	ErrorType string                 `json:"error_type"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"analysis_metadata,omitempty"`
}

// FileStore writes one indented JSON file per report
type FileStore struct {
	dir    string
	clock  clockwork.Clock
	logger logger.Logger
	mu     sync.Mutex
}

// Option configures a FileStore
type Option func(*FileStore)

// WithClock sets the clock used for file name timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *FileStore) { s.clock = clock }
}

// WithLogger sets the store logger
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore creates the results directory if needed
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	s := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.logger = logger.OrDefault(s.logger)
	return s, nil
}

// Dir returns the results directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes payload to {dir}/{key}_{YYYYMMDD_HHMMSS}.json and returns the path
func (s *FileStore) Save(key string, payload interface{}) (string, error) {
	return s.write(key, "", payload)
}

// SaveError writes an error record to {dir}/{key}_{YYYYMMDD_HHMMSS}_error.json
func (s *FileStore) SaveError(key string, cause error, meta map[string]interface{}) (string, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	rec := ErrorRecord{
		RunID:     uuid.NewString(),
		Key:       key,
		Status:    StatusError,
		Error:     msg,
		ErrorType: string(errs.TypeOf(cause)),
		Timestamp: s.clock.Now().UTC(),
		Meta:      meta,
	}
	return s.write(key, "_error", rec)
}

func (s *FileStore) write(key, suffix string, payload interface{}) (string, error) {
	name := SanitizeKey(key)
	if name == "" {
		return "", errs.New(errs.ErrorTypeInvalidArgument, "report.Save", "empty report key")
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.nextPath(name, suffix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename report file: %w", err)
	}

	s.logger.InfoWithFields("Report saved", map[string]interface{}{
		"key":  key,
		"path": path,
	})
	return path, nil
}

// nextPath never returns an existing file; saves within the same second get
// a numeric suffix.
func (s *FileStore) nextPath(name, suffix string) string {
	base := fmt.Sprintf("%s_%s", name, s.clock.Now().Format(TimestampLayout))
	path := filepath.Join(s.dir, base+suffix+".json")
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s-%d%s.json", base, i, suffix))
	}
	return path
}

// List returns the saved report files for key, oldest first. Error records
// are included.
func (s *FileStore) List(key string) ([]string, error) {
	name := SanitizeKey(key)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var out []string
	prefix := name + "_"
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || filepath.Ext(n) != ".json" || !strings.HasPrefix(n, prefix) {
			continue
		}
		// the timestamp must follow directly, so "nike_" does not match "nike_running_"
		rest := strings.TrimPrefix(n, prefix)
		if len(rest) < len(TimestampLayout) || !isDigits(rest[:8]) {
			continue
		}
		out = append(out, filepath.Join(s.dir, n))
	}
	sort.Strings(out)
	return out, nil
}

// SanitizeKey makes key safe to use as a file name prefix
func SanitizeKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "@")
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
