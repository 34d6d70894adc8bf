package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7341", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, "memory", cfg.Sticky.Store)
	assert.Equal(t, 5, cfg.Sticky.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Sticky.RetryAfter)
	assert.False(t, cfg.Gossip.Enabled)
	assert.Equal(t, "telreg/", cfg.Gossip.Topic)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telreg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: 0.0.0.0:9000
log_level: debug
outbox_size: 16
tokens:
  dump:
    - "$2a$04$abc"
sticky:
  store: sqlite
  path: /tmp/sticky.db
`), 0o600))

	t.Setenv("TELREG_LOG_LEVEL", "warn")
	t.Setenv("TELREG_STICKY_PATH", "/var/lib/telreg/sticky.db")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen-addr", "", "")
	flags.Int("outbox-size", 0, "")
	require.NoError(t, flags.Parse([]string{"--outbox-size=32"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr, "unset flag must not override the file")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 32, cfg.OutboxSize)
	assert.Equal(t, "sqlite", cfg.Sticky.Store)
	assert.Equal(t, "/var/lib/telreg/sticky.db", cfg.Sticky.Path)
	assert.Equal(t, []string{"$2a$04$abc"}, cfg.Tokens.Dump)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("TELREG_STICKY_STORE", "file")
	_, err := Load("", nil)
	assert.ErrorContains(t, err, "sticky.path")

	t.Setenv("TELREG_STICKY_STORE", "redis")
	_, err = Load("", nil)
	assert.ErrorContains(t, err, "unknown sticky.store")
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "listen_addr", keyFor("listen-addr"))
	assert.Equal(t, "sticky.store", keyFor("STICKY_STORE"))
	assert.Equal(t, "gossip.enabled", keyFor("gossip-enabled"))
	assert.Equal(t, "write_timeout", keyFor("WRITE_TIMEOUT"))
	assert.Equal(t, "sticky.retry_after", keyFor("STICKY_RETRY_AFTER"))
}
