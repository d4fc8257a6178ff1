package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 20.0, cfg.Server.RateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Pricing.RefreshTTL)
	assert.Equal(t, 7.2, cfg.Pricing.ExchangeRate)
	assert.Equal(t, 200, cfg.Leaderboard.MaxEntries)
	assert.Equal(t, "file", cfg.Prices.Backend)
	assert.Equal(t, 150.0, cfg.Report.Threshold)
	assert.Equal(t, "0 17 * * *", cfg.Report.Cron)
	assert.Equal(t, "sk-", cfg.Identity.SecretPrefix)
	assert.False(t, cfg.Worker.Enabled)
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("FEISHU_WEBHOOK_URL", "https://open.feishu.cn/hook/x")
	t.Setenv("FEISHU_ALERT_THRESHOLD", "80")
	t.Setenv("NEWAPI_DB_HOST", "db.internal")

	cfg := Defaults()
	assert.Equal(t, "https://open.feishu.cn/hook/x", cfg.Report.WebhookURL)
	assert.Equal(t, 80.0, cfg.Report.Threshold)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
database:
  driver: sqlite
  path: /tmp/logs.db
  query_timeout: 5s
report:
  timezone: UTC
`), 0o644))

	cfg, err := Load("test", path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "/tmp/logs.db", cfg.Database.GetDSN())

	loc, err := cfg.Report.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = Load("test", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", pg.GetDSN())

	my := DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, User: "u", Password: "p", DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=true&loc=Local", my.GetDSN())
}

func TestLocationInvalid(t *testing.T) {
	_, err := (&ReportConfig{Timezone: "Mars/Olympus"}).Location()
	assert.Error(t, err)
}
