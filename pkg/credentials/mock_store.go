package credentials

import "sync"

// MockStore is an in-memory Store with error injection
type MockStore struct {
	secrets map[string]Secret
	mu      sync.RWMutex

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates an empty MockStore
func NewMockStore() *MockStore {
	return &MockStore{secrets: make(map[string]Secret)}
}

// Store saves a copy of the secret
func (m *MockStore) Store(secret *Secret) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if secret == nil || secret.Service == "" {
		return ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[secret.Service] = *secret
	return nil
}

// Retrieve returns a copy of the stored secret
func (m *MockStore) Retrieve(service string) (*Secret, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.secrets[service]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &secret, nil
}

// List returns copies of all secrets
func (m *MockStore) List() ([]*Secret, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Secret, 0, len(m.secrets))
	for _, secret := range m.secrets {
		s := secret
		out = append(out, &s)
	}
	return out, nil
}

// Delete removes a secret
func (m *MockStore) Delete(service string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[service]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.secrets, service)
	return nil
}

// Exists checks if a secret is stored
func (m *MockStore) Exists(service string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.secrets[service]
	return ok
}

// Count returns the number of stored secrets
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
