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

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: postgres
postgres:
  dsn: "postgres://u:p@db:5432/decant"
  query_timeout: 2s
pricing:
  margin_min_percent: 80
  margin_max_percent: 300
  honor_pinned: true
  default_sizes: [5, 10]
audit:
  schedule: "*/30 * * * *"
  autofix: true
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/decant", c.Postgres.DSN)
	assert.Equal(t, 2*time.Second, c.Postgres.QueryTimeout)
	assert.Equal(t, 10*time.Second, c.Postgres.TxTimeout)
	assert.Equal(t, 80.0, c.Pricing.MarginMinPercent)
	assert.Equal(t, 300.0, c.Pricing.MarginMaxPercent)
	assert.True(t, c.Pricing.HonorPinned)
	assert.Equal(t, []int{5, 10}, c.Pricing.DefaultSizes)
	assert.Equal(t, "*/30 * * * *", c.Audit.Schedule)
	assert.True(t, c.Audit.AutoFix)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "0.01", c.Pricing.Tolerance)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_STORAGE_DRIVER", "memory")
	t.Setenv("APP_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("APP_AUDIT_WORKERS", "8")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "123:abc", c.Telegram.Token)
	assert.Equal(t, 8, c.Audit.Workers)
	assert.Equal(t, "average", c.Pricing.CostMethod)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no dsn":         "storage:\n  driver: postgres\n",
		"unknown driver": "storage:\n  driver: mongo\n",
		"inverted band":  "storage:\n  driver: memory\npricing:\n  margin_min_percent: 300\n  margin_max_percent: 100\n",
		"cost method":    "storage:\n  driver: memory\npricing:\n  cost_method: fifo\n",
		"tolerance":      "storage:\n  driver: memory\npricing:\n  tolerance: \"-0.5\"\n",
		"size":           "storage:\n  driver: memory\npricing:\n  default_sizes: [5, 0]\n",
		"timezone":       "app:\n  timezone: Mars/Olympus\nstorage:\n  driver: memory\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
