package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultServer(t *testing.T, wantPath, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.Path)
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoadIntoEnv_Disabled(t *testing.T) {
	result, err := LoadIntoEnv(context.Background(), VaultConfig{})
	require.NoError(t, err)
	assert.Zero(t, result.Loaded)
}

func TestLoadIntoEnv_Incomplete(t *testing.T) {
	_, err := LoadIntoEnv(context.Background(), VaultConfig{Enabled: true, Addr: "http://vault"})
	assert.Error(t, err)
}

func TestLoadIntoEnv_KVv2(t *testing.T) {
	server := vaultServer(t, "/v1/secret/data/medigrid",
		`{"data":{"data":{"MEDIGRID_TEST_GEMINI_KEY":"g-key","MEDIGRID_TEST_RPM":30,"MEDIGRID_TEST_KEEP":"vault"}}}`)
	t.Setenv("MEDIGRID_TEST_GEMINI_KEY", "")
	t.Setenv("MEDIGRID_TEST_RPM", "")
	t.Setenv("MEDIGRID_TEST_KEEP", "local")

	result, err := LoadIntoEnv(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL,
		Token:     "root-token",
		Mount:     "secret",
		Path:      "medigrid",
		KVVersion: 2,
		Timeout:   time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "g-key", os.Getenv("MEDIGRID_TEST_GEMINI_KEY"))
	assert.Equal(t, "30", os.Getenv("MEDIGRID_TEST_RPM"))
	assert.Equal(t, "local", os.Getenv("MEDIGRID_TEST_KEEP"))
}

func TestLoadIntoEnv_KVv1Overwrite(t *testing.T) {
	server := vaultServer(t, "/v1/kv/medigrid", `{"data":{"MEDIGRID_TEST_OPENAI_KEY":"o-key"}}`)
	t.Setenv("MEDIGRID_TEST_OPENAI_KEY", "stale")

	result, err := LoadIntoEnv(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL + "/",
		Token:     "root-token",
		Mount:     "kv",
		Path:      "/medigrid",
		KVVersion: 1,
		Timeout:   time.Second,
		Overwrite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded)
	assert.Equal(t, "o-key", os.Getenv("MEDIGRID_TEST_OPENAI_KEY"))
}

func TestLoadIntoEnv_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := LoadIntoEnv(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "t", Mount: "secret", Path: "p", KVVersion: 2, Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestLoadIntoEnv_MissingData(t *testing.T) {
	server := vaultServer(t, "/v1/secret/data/medigrid", `{"data":{}}`)

	_, err := LoadIntoEnv(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "root-token", Mount: "secret", Path: "medigrid", KVVersion: 2, Timeout: time.Second,
	})
	assert.Error(t, err)
}

func TestVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "TRUE")
	t.Setenv("VAULT_MOUNT", "")
	t.Setenv("VAULT_KV_VERSION", "1")
	t.Setenv("VAULT_TIMEOUT_MS", "250")

	cfg := VaultConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "secret", cfg.Mount)
	assert.Equal(t, 1, cfg.KVVersion)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
}
