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
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 0, cfg.Crawl.MaxDepth)
	assert.True(t, cfg.Crawl.DNSFallback)
	assert.Equal(t, 22, cfg.Credentials.Port)
	assert.Equal(t, 10, cfg.Snapshot.MaxKeep)
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, []string{"---- More ----"}, cfg.Collector.OutputFilter.Prefixes)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "0.0.0.0:8088", cfg.GetServerAddr())
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
server:
  port: 9090
crawl:
  seed: 10.0.0.1
  max_depth: 2
  allowed_subnets: ["10.0.0.0/8"]
credentials:
  username: admin
  password: ${SWITCHDOC_TEST_PASS}
ssh:
  command_timeout: 15s
snapshot:
  max_keep: 3
`)
	t.Setenv("SWITCHDOC_TEST_PASS", "s3cret")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Crawl.Seed)
	assert.Equal(t, 2, cfg.Crawl.MaxDepth)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Crawl.AllowedSubnets)
	assert.Equal(t, "admin", cfg.Credentials.Username)
	assert.Equal(t, "s3cret", cfg.Credentials.Password, "${ENV} 引用应展开")
	assert.Equal(t, 15*time.Second, cfg.SSH.CommandTimeout)
	assert.Equal(t, 3, cfg.Snapshot.MaxKeep)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, 60*time.Second, cfg.SSH.Timeout)
	assert.Same(t, cfg, Get())
}

func TestLoadEnvOverride(t *testing.T) {
	p := writeConfig(t, "credentials:\n  username: admin\n")
	t.Setenv("SWITCHDOC_CREDENTIALS_PASSWORD", "from-env")
	t.Setenv("SWITCHDOC_CRAWL_SEED", "192.0.2.1")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Credentials.Password)
	assert.Equal(t, "192.0.2.1", cfg.Crawl.Seed)
}

func TestLoadUnsetRef(t *testing.T) {
	p := writeConfig(t, "credentials:\n  password: ${SWITCHDOC_TEST_MISSING}\n")
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "${SWITCHDOC_TEST_MISSING}", cfg.Credentials.Password, "变量未设置时保留原值")
}

func TestNormalize(t *testing.T) {
	p := writeConfig(t, `
crawl:
  max_depth: -1
credentials:
  port: 70000
snapshot:
  max_keep: 0
metrics:
  path: " "
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Crawl.MaxDepth)
	assert.Equal(t, 22, cfg.Credentials.Port)
	assert.Equal(t, 10, cfg.Snapshot.MaxKeep)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "显式指定的文件不存在时报错")

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}
