package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestManagerWithMockStore(t *testing.T) {
	store := NewMockStore()
	manager := NewManagerWithStores(store)

	require.NoError(t, manager.Store(" Apify ", " apify_api_abcdef123456 "))
	assert.Equal(t, 1, store.Count())

	secret, err := manager.Retrieve(ServiceApify)
	require.NoError(t, err)
	assert.Equal(t, "apify_api_abcdef123456", secret.Token)
	assert.Equal(t, "apify_api_abcdef123456", manager.Token(ServiceApify))
	assert.Empty(t, manager.Token(ServiceOpenAI))

	secrets, err := manager.List()
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, ServiceApify, secrets[0].Service)

	require.NoError(t, manager.Delete(ServiceApify))
	_, err = manager.Retrieve(ServiceApify)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, manager.Delete(ServiceApify), ErrCredentialsNotFound)
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMockStore())

	assert.ErrorIs(t, manager.Store("instagram", "x"), ErrInvalidCredentials)
	assert.ErrorIs(t, manager.Store(ServiceOpenAI, "  "), ErrInvalidCredentials)
}

func TestManagerFallsThroughStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	backup := NewMockStore()
	manager := NewManagerWithStores(broken, backup, NewEnvironmentStore())

	require.NoError(t, manager.Store(ServiceOpenAI, "sk-test-1234567890"))
	assert.Equal(t, 0, broken.Count())
	assert.True(t, backup.Exists(ServiceOpenAI))

	only := NewManagerWithStores(broken, NewEnvironmentStore())
	err := only.Store(ServiceOpenAI, "sk-test")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, older.Store(&Secret{Service: ServiceApify, Token: "old", LastModified: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Secret{Service: ServiceApify, Token: "new", LastModified: now}))

	secrets, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "new", secrets[0].Token)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Secret{Service: ServiceApify, Token: "apify_secret_token"}))
	require.NoError(t, store.Store(&Secret{Service: ServiceOpenAI, Token: "sk-secret-token"}))

	got, err := store.Retrieve(ServiceApify)
	require.NoError(t, err)
	assert.Equal(t, "apify_secret_token", got.Token)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "apify_secret_token")
	assert.NotContains(t, string(content), "sk-secret-token")

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	secrets, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, secrets, 2)
	assert.Equal(t, ServiceApify, secrets[0].Service)

	require.NoError(t, store.Delete(ServiceApify))
	require.NoError(t, store.Delete(ServiceOpenAI))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, store.Delete(ServiceOpenAI), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Secret{Service: ServiceApify, Token: "tok"}))

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve(ServiceApify)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	dir := t.TempDir()

	_, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("IGAUDIENCE_APIFY_TOKEN", "")
	t.Setenv("APIFY_API_KEY", "env_apify")
	t.Setenv("IGAUDIENCE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	store := NewEnvironmentStore()

	secret, err := store.Retrieve(ServiceApify)
	require.NoError(t, err)
	assert.Equal(t, "env_apify", secret.Token)
	assert.False(t, store.Exists(ServiceOpenAI))

	secrets, err := store.List()
	require.NoError(t, err)
	assert.Len(t, secrets, 1)

	assert.ErrorIs(t, store.Store(&Secret{Service: ServiceApify}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(ServiceApify), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Secret{Service: ServiceOpenAI, Token: "sk-keyring"}))
	assert.True(t, store.Exists(ServiceOpenAI))

	got, err := store.Retrieve(ServiceOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-keyring", got.Token)

	secrets, err := store.List()
	require.NoError(t, err)
	require.Len(t, secrets, 1)

	require.NoError(t, store.Delete(ServiceOpenAI))
	_, err = store.Retrieve(ServiceOpenAI)
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, store.Delete(ServiceOpenAI), ErrCredentialsNotFound)
}

func TestNewManagerUsesKeyringFirst(t *testing.T) {
	keyring.MockInit()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(PassphraseEnv, "p")

	manager, err := NewManager()
	require.NoError(t, err)
	require.Len(t, manager.stores, 3)
	_, ok := manager.stores[0].(*KeyringStore)
	assert.True(t, ok)

	require.NoError(t, manager.Store(ServiceApify, "apify_token_value"))
	assert.Equal(t, "apify_token_value", manager.Token(ServiceApify))
	require.NoError(t, manager.Delete(ServiceApify))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "sk-a...wxyz", Mask("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestEncryptedFileStoreBindsRecordsToService(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Secret{Service: ServiceApify, Token: "apify_tok"}))
	require.NoError(t, store.Store(&Secret{Service: ServiceOpenAI, Token: "sk-tok"}))

	v, err := store.open()
	require.NoError(t, err)
	v.Records[ServiceApify], v.Records[ServiceOpenAI] = v.Records[ServiceOpenAI], v.Records[ServiceApify]
	require.NoError(t, store.write(v))

	_, err = store.Retrieve(ServiceApify)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}
