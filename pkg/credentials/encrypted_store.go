package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
	vaultVer   = 2

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "IGAUDIENCE_PASSPHRASE"
)

// EncryptedFileStore keeps one AES-GCM sealed record per service in a JSON
// vault file. The service name is bound to its record as additional data.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

type vault struct {
	Version  int               `json:"version"`
	Salt     []byte            `json:"salt"`
	Modified time.Time         `json:"modified"`
	Records  map[string][]byte `json:"records"`

	aead cipher.AEAD
}

// NewEncryptedFileStore creates a store at path. The passphrase comes from
// IGAUDIENCE_PASSPHRASE or a generated .passphrase file in the same directory.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(secret *Secret) error {
	if secret == nil || secret.Service == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if errors.Is(err, os.ErrNotExist) {
		v, err = e.create()
	}
	if err != nil {
		return err
	}
	if err := v.seal(secret); err != nil {
		return err
	}
	return e.write(v)
}

func (e *EncryptedFileStore) Retrieve(service string) (*Secret, error) {
	if service == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, err
	}
	return v.unseal(service)
}

// List decrypts every record, sorted by service
func (e *EncryptedFileStore) List() ([]*Secret, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if errors.Is(err, os.ErrNotExist) {
		return []*Secret{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]*Secret, 0, len(v.Records))
	for service := range v.Records {
		secret, err := v.unseal(service)
		if err != nil {
			return nil, err
		}
		out = append(out, secret)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// Delete removes the record for service. The vault file goes with the last
// record.
func (e *EncryptedFileStore) Delete(service string) error {
	if service == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if errors.Is(err, os.ErrNotExist) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return err
	}
	if _, ok := v.Records[service]; !ok {
		return ErrCredentialsNotFound
	}

	delete(v.Records, service)
	if len(v.Records) == 0 {
		return os.Remove(e.path)
	}
	return e.write(v)
}

func (e *EncryptedFileStore) Exists(service string) bool {
	secret, err := e.Retrieve(service)
	return err == nil && secret != nil
}

func (e *EncryptedFileStore) create() (*vault, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	v := &vault{Version: vaultVer, Salt: salt, Records: make(map[string][]byte)}
	return v, v.derive(e.passphrase)
}

func (e *EncryptedFileStore) open() (*vault, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	var v vault
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if v.Version != vaultVer {
		return nil, fmt.Errorf("unsupported credentials file version %d", v.Version)
	}
	if v.Records == nil {
		v.Records = make(map[string][]byte)
	}
	return &v, v.derive(e.passphrase)
}

func (e *EncryptedFileStore) write(v *vault) error {
	v.Modified = time.Now().UTC()
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials file: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

func (v *vault) derive(passphrase string) error {
	key := pbkdf2.Key([]byte(passphrase), v.Salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	v.aead, err = cipher.NewGCM(block)
	return err
}

// seal stores nonce||ciphertext for the secret under its service
func (v *vault) seal(secret *Secret) error {
	plaintext, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to encode secret: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	v.Records[secret.Service] = v.aead.Seal(nonce, nonce, plaintext, []byte(secret.Service))
	return nil
}

func (v *vault) unseal(service string) (*Secret, error) {
	record, ok := v.Records[service]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	n := v.aead.NonceSize()
	if len(record) < n {
		return nil, fmt.Errorf("credential record for %s is truncated", service)
	}

	plaintext, err := v.aead.Open(nil, record[:n], record[n:], []byte(service))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s credentials: %w", service, err)
	}
	var secret Secret
	if err := json.Unmarshal(plaintext, &secret); err != nil {
		return nil, fmt.Errorf("failed to decode %s credentials: %w", service, err)
	}
	return &secret, nil
}

// loadPassphrase reads the passphrase from the environment or path,
// generating and saving one on first use
func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.RawURLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
