package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http":              "www.example:8080",
		"database_dsn":                    "stylist.db",
		"secret_key":                      "my_secret_key",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "3m",
		"free_monthly_quota":              0,
		"poll_interval":                   1000000000,
		"tryon_deadline":                  "45s",
		"s3_bucket":                       "bucket",
		"provider_mode":                   "quality",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, "www.example:8080", cfg.EndpointAddrHTTP)
		assert.Equal(t, "stylist.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, 0, cfg.FreeMonthlyQuota)
		assert.Equal(t, time.Second, cfg.PollInterval)
		assert.Equal(t, 45*time.Second, cfg.TryOnDeadline)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "quality", cfg.ProviderMode)
		// untouched by the file
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
		assert.Equal(t, 30, cfg.MaxPollAttempts)
	})

	t.Run("no config flag leaves config unchanged", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		want := *cfg
		require.NoError(t, parseJson(cfg, nil))
		assert.Equal(t, want, *cfg)
	})

	t.Run("flags win over json", func(t *testing.T) {
		cfg, err := LoadConfig([]string{"-c", pathFlag, "-s", "from_flag"})
		require.NoError(t, err)
		assert.Equal(t, "from_flag", cfg.SecretKey)
		assert.Equal(t, "stylist.db", cfg.DatabaseDSN)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := &Config{}
		require.Error(t, parseJson(cfg, []string{"-config", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &Config{}
		require.Error(t, parseJson(cfg, []string{"-c", filepath.Join(dir, "nope.json")}))
	})
}
