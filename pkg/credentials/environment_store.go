package credentials

import (
	"os"
	"time"
)

// envKeys lists the variables read per service, first match wins
var envKeys = map[string][]string{
	ServiceApify:  {"IGAUDIENCE_APIFY_TOKEN", "APIFY_API_KEY", "APIFY_TOKEN"},
	ServiceOpenAI: {"IGAUDIENCE_OPENAI_API_KEY", "OPENAI_API_KEY"},
}

// EnvironmentStore implements Store over environment variables. It is
// read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(secret *Secret) error {
	return ErrStoreUnavailable
}

// Retrieve reads the service token from the environment
func (e *EnvironmentStore) Retrieve(service string) (*Secret, error) {
	for _, key := range envKeys[service] {
		if token := os.Getenv(key); token != "" {
			return &Secret{Service: service, Token: token, LastModified: time.Time{}}, nil
		}
	}
	return nil, ErrCredentialsNotFound
}

// List returns the services whose tokens are set
func (e *EnvironmentStore) List() ([]*Secret, error) {
	var secrets []*Secret
	for _, service := range Services {
		if secret, err := e.Retrieve(service); err == nil {
			secrets = append(secrets, secret)
		}
	}
	return secrets, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(service string) error {
	return ErrStoreUnavailable
}

// Exists checks if the service token is set
func (e *EnvironmentStore) Exists(service string) bool {
	_, err := e.Retrieve(service)
	return err == nil
}
