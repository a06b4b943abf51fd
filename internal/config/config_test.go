package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 4, cfg.Crawler.Parallelism)
	require.Equal(t, 2*time.Second, cfg.Crawler.Delay)
	require.Equal(t, 30*time.Second, cfg.Crawler.Timeout)
	require.Equal(t, 10, cfg.Crawler.BatchSize)
	require.Equal(t, 5, cfg.Crawler.MaxTags)
	require.Contains(t, cfg.Crawler.UserAgent, "DatasetCrawler")
	require.False(t, cfg.Auth.Enabled)
	require.False(t, cfg.PubSub.Enabled)
	require.Empty(t, cfg.Database.DSN)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
crawler:
  delay: 500ms
  parallelism: 2
database:
  dsn: postgres://crawler@localhost/crawler
sites_path: /etc/crawler/sites.yaml
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 500*time.Millisecond, cfg.Crawler.Delay)
	require.Equal(t, 2, cfg.Crawler.Parallelism)
	require.Equal(t, "postgres://crawler@localhost/crawler", cfg.Database.DSN)
	require.Equal(t, "/etc/crawler/sites.yaml", cfg.SitesPath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRAWLER_SERVER_ADDR", ":7070")
	t.Setenv("CRAWLER_CRAWLER_PARALLELISM", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, 8, cfg.Crawler.Parallelism)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Auth.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "auth.api_key")

	cfg = base()
	cfg.PubSub.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "pubsub.project_id")

	cfg = base()
	cfg.Crawler.BatchSize = 0
	require.ErrorContains(t, cfg.Validate(), "batch_size")

	cfg = base()
	cfg.SideFileDir = ""
	require.ErrorContains(t, cfg.Validate(), "side_file_dir")
}
