package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PYTHON_ML_SERVICE_URL", "PREDICTIONS_FILE", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "data/predictions.json", cfg.Storage.Path)
	assert.Equal(t, 100, cfg.Storage.Retention)
	assert.Equal(t, "http://localhost:5000", cfg.MLService.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.MLService.Timeout)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 9090
  writeTimeout: 2m
storage:
  driver: Postgres
  retention: 50
database:
  host: db.internal
  name: tomvto
  user: tomvto
  password: secret
mlService:
  baseURL: http://ml:5000
  timeout: 10s
auth:
  apiKeys:
    dashboard: abc
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 50, cfg.Storage.Retention)
	assert.Equal(t, 10*time.Second, cfg.MLService.Timeout)
	assert.Equal(t, map[string]string{"dashboard": "abc"}, cfg.Auth.APIKeys)
	assert.Equal(t, "host=db.internal port=5432 user=tomvto password=secret dbname=tomvto sslmode=disable", cfg.PostgresDSN())
	assert.Equal(t, "tomvto:secret@tcp(db.internal:3306)/tomvto?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PYTHON_ML_SERVICE_URL", "https://ml.example.com")
	t.Setenv("PREDICTIONS_FILE", "/var/lib/tomvto/predictions.json")
	t.Setenv("PORT", "3001")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "https://ml.example.com", cfg.MLService.BaseURL)
	assert.Equal(t, "/var/lib/tomvto/predictions.json", cfg.Storage.Path)
	assert.Equal(t, 3001, cfg.Server.Port)

	t.Setenv("PORT", "eighty")
	_, err = Load(writeConfig(t, ""), true)
	assert.ErrorContains(t, err, "invalid PORT")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "unknown storage.driver"},
		{"file without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"mysql without host", func(c *Config) { c.Storage.Driver = DriverMySQL }, "database.host"},
		{"zero retention", func(c *Config) { c.Storage.Retention = 0 }, "storage.retention"},
		{"non-http ml url", func(c *Config) { c.MLService.BaseURL = "ftp://ml" }, "mlService.baseURL"},
		{"zero timeout", func(c *Config) { c.MLService.Timeout = 0 }, "mlService.timeout"},
		{"minio without bucket", func(c *Config) { c.Minio.Enabled = true; c.Minio.Endpoint = "minio:9000" }, "minio.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyEnvIgnoresEmpty(t *testing.T) {
	t.Parallel()

	cfg := Default()
	lookup := func(string) (string, bool) { return "", true }
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, Default(), cfg)
}
