package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRead_DefaultsAndFile(t *testing.T) {
	p := writeYAML(t, `
app:
  http:
    port: 8080
jwt:
  secret: s3cret
db:
  driver: sqlite
  dsn: file::memory:
`)
	c, err := Read(p)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.App.HTTP.Port)
	assert.Equal(t, "sqlite", c.DB.Driver)
	assert.Equal(t, 1000, c.Quota.FreeMonthly)
	assert.Equal(t, 30, c.Crawl.MaxAttempts)
	assert.Equal(t, 1000, c.Crawl.PollIntervalMs)
	assert.Equal(t, "doubao-seed-1-6-250615", c.LLM.Model)
	assert.Equal(t, 500, c.Content.BatchDelayMs)
	assert.Equal(t, 90, c.Content.BatchTimeoutSec)
	assert.Equal(t, "s3cret.refresh", c.JWT.RefreshSecret)
}

func TestRead_EnvOverride(t *testing.T) {
	p := writeYAML(t, `
quota:
  freeMonthly: 1000
`)
	t.Setenv("APP_QUOTA_FREEMONTHLY", "2500")
	t.Setenv("APP_LLM_APIKEY", "sk-test")

	c, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2500, c.Quota.FreeMonthly)
	assert.Equal(t, "sk-test", c.LLM.APIKey)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
