package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"igaudience/pkg/logger"
)

// appDir names the application's data directory
const appDir = "igaudience"

// Checkpoint is the state of a batch run over a brands or users file
type Checkpoint struct {
	Batch        string            `json:"batch"`
	TotalTargets int               `json:"total_targets"`
	Completed    map[string]string `json:"completed"` // handle -> report path
	Failed       map[string]string `json:"failed"`    // handle -> error text
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Version      int               `json:"version"`
}

// IsCompleted reports whether handle finished successfully in an earlier run
func (cp *Checkpoint) IsCompleted(handle string) bool {
	_, ok := cp.Completed[handle]
	return ok
}

// Remaining filters handles down to those not yet completed. Failed handles
// are retried.
func (cp *Checkpoint) Remaining(handles []string) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if !cp.IsCompleted(h) {
			out = append(out, h)
		}
	}
	return out
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	clock          clockwork.Clock
	logger         logger.Logger
	mu             sync.Mutex
}

// Option configures a Manager
type Option func(*managerOptions)

type managerOptions struct {
	dir    string
	clock  clockwork.Clock
	logger logger.Logger
}

// WithDirectory stores checkpoints in dir instead of the user data directory
func WithDirectory(dir string) Option {
	return func(o *managerOptions) { o.dir = dir }
}

// WithClock sets the clock used for timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(o *managerOptions) { o.clock = clock }
}

// WithLogger sets the manager logger
func WithLogger(l logger.Logger) Option {
	return func(o *managerOptions) { o.logger = l }
}

// NewManager creates a checkpoint manager for the named batch
func NewManager(batch string, opts ...Option) (*Manager, error) {
	o := managerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	dir := o.dir
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", batchName(batch))),
		clock:          o.clock,
		logger:         logger.OrDefault(o.logger),
	}, nil
}

// BatchName derives a checkpoint name from a targets file path
func BatchName(targetsFile string) string {
	base := filepath.Base(targetsFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func batchName(batch string) string {
	batch = strings.TrimSpace(batch)
	if batch == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' || r == ':' {
			return '_'
		}
		return r
	}, batch)
}

// Path returns the checkpoint file path
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates and saves a new checkpoint
func (m *Manager) Create(batch string, totalTargets int) (*Checkpoint, error) {
	now := m.clock.Now()
	checkpoint := &Checkpoint{
		Batch:        batch,
		TotalTargets: totalTargets,
		Completed:    make(map[string]string),
		Failed:       make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"batch": batch,
		"path":  m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Completed == nil {
		checkpoint.Completed = make(map[string]string)
	}
	if checkpoint.Failed == nil {
		checkpoint.Failed = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"batch":      checkpoint.Batch,
		"completed":  len(checkpoint.Completed),
		"failed":     len(checkpoint.Failed),
		"updated_at": checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// LoadOrCreate resumes the existing checkpoint or starts a new one
func (m *Manager) LoadOrCreate(batch string, totalTargets int) (*Checkpoint, bool, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, false, err
	}
	if cp != nil {
		return cp, true, nil
	}
	cp, err = m.Create(batch, totalTargets)
	return cp, false, err
}

// Save writes the checkpoint atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoint.UpdatedAt = m.clock.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"batch":     checkpoint.Batch,
		"completed": len(checkpoint.Completed),
		"failed":    len(checkpoint.Failed),
	})

	return nil
}

// RecordCompleted marks handle as done and clears any earlier failure
func (m *Manager) RecordCompleted(checkpoint *Checkpoint, handle, reportPath string) error {
	checkpoint.Completed[handle] = reportPath
	delete(checkpoint.Failed, handle)
	return m.Save(checkpoint)
}

// RecordFailed marks handle as failed so a resumed run retries it
func (m *Manager) RecordFailed(checkpoint *Checkpoint, handle string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	checkpoint.Failed[handle] = msg
	return m.Save(checkpoint)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// BackupCheckpoint copies the current checkpoint next to itself with a
// .backup suffix
func (m *Manager) BackupCheckpoint() error {
	if !m.Exists() {
		return nil
	}

	backupPath := m.checkpointPath + ".backup"

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", appDir)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, appDir)
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, appDir)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", appDir)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
