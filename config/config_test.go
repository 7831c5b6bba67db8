package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fzft/go-avocado/scheduler"
)

const tomlConfig = `
[server]
bind = "0.0.0.0"
port = $ENV{AVOCADO_TEST_PORT:7000}
max_idle_time = "30s"
hz = 20

[scheduler]
concurrency = 4
backend = "poll"

[[dispatcher.queue]]
name = "CLIENT"
threads = 8
max_ready = 100

[[dispatcher.queue]]
name = "ADMIN"
threads = 1

[log]
level = "$ENV{AVOCADO_TEST_LEVEL:warn}"
`

const yamlConfig = `
server:
  port: 7001
  shutdown_timeout: 1s
dispatcher:
  queues:
    - name: CLIENT
      threads: 2
    - name: ADMIN
      threads: 1
log:
  level: debug
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:6380", cfg.Server.Addr())
	assert.Equal(t, time.Duration(0), cfg.Server.IdleTimeout())
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownGrace())
	assert.Equal(t, scheduler.BackendAuto, cfg.Scheduler.BackendHint())
}

func TestLoadTOML(t *testing.T) {
	t.Setenv("AVOCADO_TEST_LEVEL", "error")

	cfg, err := Load(writeFile(t, "avocado.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.IdleTimeout())
	assert.Equal(t, 20, cfg.Server.Hz)
	assert.Equal(t, 10000, cfg.Server.MaxClients, "unset keys keep their default")
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, scheduler.BackendPoll, cfg.Scheduler.BackendHint())
	assert.Equal(t, []QueueConfig{
		{Name: QueueClient, Threads: 8, MaxReady: 100},
		{Name: QueueAdmin, Threads: 1},
	}, cfg.Dispatcher.Queues)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "avocado.yml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Server.ShutdownGrace())
	assert.Len(t, cfg.Dispatcher.Queues, 2)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "debug", cfg.Log.Options().Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "avocado.json", "{}"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, "avocado.yaml", "server:\n  colour: red\n"))
	assert.Error(t, err, "unknown yaml fields are rejected")

	_, err = Load(writeFile(t, "avocado.toml", "[server]\nport = 70000\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AVOCADO_SET", "yes")
	t.Setenv("AVOCADO_EMPTY", "")

	out := expandEnv([]byte("a=$ENV{AVOCADO_SET:no} b=$ENV{AVOCADO_EMPTY:fallback} c=$ENV{AVOCADO_UNSET}"))
	assert.Equal(t, "a=yes b=fallback c=", string(out))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Hz = 0
	cfg.Server.MaxIdleTime = "soon"
	cfg.Scheduler.Concurrency = 0
	cfg.Scheduler.Backend = "kqueue"
	cfg.Dispatcher.Queues = []QueueConfig{
		{Name: QueueClient, Threads: 1},
		{Name: QueueClient, Threads: 0},
	}
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{
		"server.hz",
		"server.max_idle_time",
		"scheduler.concurrency",
		`scheduler.backend "kqueue"`,
		`queue "CLIENT" defined twice`,
		`queue "CLIENT" needs at least one thread`,
		`queue "ADMIN" is required`,
		"log.level",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
