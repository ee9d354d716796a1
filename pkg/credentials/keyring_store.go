package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igaudience"
	keyringPrefix  = "token_"
)

// KeyringStore implements Store using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a keychain store after checking the keychain works
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves the secret to the system keychain
func (k *KeyringStore) Store(secret *Secret) error {
	if secret == nil || secret.Service == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+secret.Service, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Retrieve gets the secret from the system keychain
func (k *KeyringStore) Retrieve(service string) (*Secret, error) {
	if service == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+service)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var secret Secret
	if err := json.Unmarshal([]byte(data), &secret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}
	return &secret, nil
}

// List probes every known service, since go-keyring cannot enumerate keys
func (k *KeyringStore) List() ([]*Secret, error) {
	var secrets []*Secret
	for _, service := range Services {
		if secret, err := k.Retrieve(service); err == nil {
			secrets = append(secrets, secret)
		}
	}
	return secrets, nil
}

// Delete removes the secret from the system keychain
func (k *KeyringStore) Delete(service string) error {
	if service == "" {
		return ErrInvalidCredentials
	}

	if err := keyring.Delete(keyringService, keyringPrefix+service); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// Exists checks if a secret exists in the keychain
func (k *KeyringStore) Exists(service string) bool {
	if service == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+service)
	return err == nil
}
