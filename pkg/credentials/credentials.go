package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Services with storable secrets
const (
	ServiceApify  = "apify"
	ServiceOpenAI = "openai"
)

// Services lists every known service in display order
var Services = []string{ServiceApify, ServiceOpenAI}

// Secret is an API token for one external service
type Secret struct {
	Service      string    `json:"service"`
	Token        string    `json:"token"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the interface for storing and retrieving secrets
type Store interface {
	// Store saves the secret for its service
	Store(secret *Secret) error

	// Retrieve gets the secret for a service
	Retrieve(service string) (*Secret, error)

	// List returns every stored secret
	List() ([]*Secret, error)

	// Delete removes the secret for a service
	Delete(service string) error

	// Exists checks if a secret exists for a service
	Exists(service string) bool
}

// Manager handles secret storage with fallback mechanisms
type Manager struct {
	stores []Store
	now    func() time.Time
}

// NewManager creates a manager over keychain, encrypted file and environment,
// in that order
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return NewManagerWithStores(stores...), nil
}

// NewManagerWithStores creates a manager over the given stores
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores, now: time.Now}
}

// ValidService reports whether service names a known service
func ValidService(service string) bool {
	for _, s := range Services {
		if s == service {
			return true
		}
	}
	return false
}

// Store saves the token using the first store that accepts it
func (m *Manager) Store(service, token string) error {
	service = strings.ToLower(strings.TrimSpace(service))
	if !ValidService(service) {
		return fmt.Errorf("%w: unknown service %q", ErrInvalidCredentials, service)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidCredentials)
	}

	secret := &Secret{Service: service, Token: token, LastModified: m.now()}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(secret); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the secret from the first store that has it
func (m *Manager) Retrieve(service string) (*Secret, error) {
	for _, store := range m.stores {
		if secret, err := store.Retrieve(service); err == nil && secret != nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, service)
}

// Token returns the stored token for service or "" when none is stored
func (m *Manager) Token(service string) string {
	secret, err := m.Retrieve(service)
	if err != nil {
		return ""
	}
	return secret.Token
}

// List returns the newest secret per service across all stores
func (m *Manager) List() ([]*Secret, error) {
	byService := make(map[string]*Secret)

	for _, store := range m.stores {
		secrets, err := store.List()
		if err != nil {
			continue
		}
		for _, secret := range secrets {
			if existing, ok := byService[secret.Service]; !ok || secret.LastModified.After(existing.LastModified) {
				byService[secret.Service] = secret
			}
		}
	}

	result := make([]*Secret, 0, len(byService))
	for _, secret := range byService {
		result = append(result, secret)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Service < result[j].Service })
	return result, nil
}

// Delete removes the secret from every store
func (m *Manager) Delete(service string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(service); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, service)
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igaudience")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igaudience")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igaudience")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igaudience")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Mask hides all but the first and last 4 characters of a token
func Mask(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
