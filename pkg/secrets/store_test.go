package secrets

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecrets(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestStore_ActiveKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.yaml")
	writeSecrets(t, path, `
keys:
  - service: OpenAI
    key: sk-old
    active: false
  - service: openai
    key: sk-live
    active: true
  - service: openai
    key: sk-second
    active: true
  - service: slack
    key: ""
    active: true
`)

	store, err := NewStore(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	key, ok := store.ActiveKey("OPENAI")
	assert.True(t, ok)
	assert.Equal(t, "sk-live", key)

	_, ok = store.ActiveKey("slack")
	assert.False(t, ok)

	_, ok = store.ActiveKey("anthropic")
	assert.False(t, ok)

	assert.Equal(t, []string{"openai"}, store.Services())
}

func TestStore_Reload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secrets.yaml")
	writeSecrets(t, path, "keys:\n  - {service: openai, key: sk-1, active: true}\n")

	store, err := NewStore(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	writeSecrets(t, path, "keys:\n  - {service: openai, key: sk-2, active: true}\n  - {service: groq, key: gq-1, active: true}\n")
	require.NoError(t, store.Reload())

	key, _ := store.ActiveKey("openai")
	assert.Equal(t, "sk-2", key)

	services := store.Services()
	sort.Strings(services)
	assert.Equal(t, []string{"groq", "openai"}, services)

	writeSecrets(t, path, "keys: [unterminated")
	require.Error(t, store.Reload())

	key, ok := store.ActiveKey("groq")
	assert.True(t, ok, "failed reload keeps the previous keys")
	assert.Equal(t, "gq-1", key)
}

func TestStore_EncryptedValues(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := codec.Encrypt("sk-sealed")
	require.NoError(t, err)
	require.True(t, IsEncrypted(sealed))

	path := filepath.Join(t.TempDir(), "secrets.yaml")
	writeSecrets(t, path, "keys:\n  - service: openai\n    key: "+sealed+"\n    active: true\n")

	store, err := NewStore(path, slog.New(slog.DiscardHandler), WithCodec(codec))
	require.NoError(t, err)

	key, ok := store.ActiveKey("openai")
	require.True(t, ok)
	assert.Equal(t, "sk-sealed", key)

	_, err = NewStore(path, slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, ErrCodecNotConfigured)
}

func TestStore_EmptyPath(t *testing.T) {
	t.Parallel()

	store, err := NewStore("", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, store.Reload())
	assert.Empty(t, store.Services())
}

func TestStore_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewStore(filepath.Join(t.TempDir(), "absent.yaml"), slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestStaticStore(t *testing.T) {
	t.Parallel()

	store := NewStaticStore(Key{Service: "openai", Key: "sk", Active: true})
	require.NoError(t, store.Reload())

	key, ok := store.ActiveKey("openai")
	assert.True(t, ok)
	assert.Equal(t, "sk", key)
}

func TestCodec(t *testing.T) {
	t.Parallel()

	codec, err := NewCodec("c2VjcmV0LW1hdGVyaWFs")
	require.NoError(t, err)

	sealed, err := codec.Encrypt("value")
	require.NoError(t, err)

	again, err := codec.Encrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again, "sealed values are not sealed twice")

	plain, err := codec.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)

	passthrough, err := codec.Decrypt("not sealed")
	require.NoError(t, err)
	assert.Equal(t, "not sealed", passthrough)

	other, err := NewCodec("different material")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	require.Error(t, err)

	_, err = codec.Decrypt(EncryptedPrefix + "AAAA")
	require.Error(t, err)

	_, err = NewCodec("  ")
	require.ErrorIs(t, err, ErrCodecNotConfigured)
}
