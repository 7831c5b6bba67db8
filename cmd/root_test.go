package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fzft/go-avocado/config"
	"github.com/fzft/go-avocado/node"
	"github.com/fzft/go-avocado/version"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "avocado", cmd.Use)

	for _, name := range []string{"serve", "cli", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.String()+"\n", out.String())
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avocado.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 7777\n"), 0o600))

	opts := &RootOptions{ConfigPath: path, LogLevel: "debug"}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts.LogLevel = "chatty"
	_, err = opts.loadConfig()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func startServer(t *testing.T) int {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	srv, err := node.NewServer(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().Port
}

func runCli(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"cli"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestCliSingleCommand(t *testing.T) {
	port := strconv.Itoa(startServer(t))

	assert.Equal(t, "OK\n", runCli(t, "", "-p", port, "SET", "k", "hello world"))
	assert.Equal(t, "hello world\n", runCli(t, "", "-p", port, "GET", "k"))
	assert.Equal(t, "\"hello world\"\n", runCli(t, "", "-p", port, "--no-raw", "GET", "k"))
	assert.Equal(t, "1\n2\n3\n", runCli(t, "", "-p", port, "-r", "3", "INCR", "n"))
}

func TestCliReadsStdin(t *testing.T) {
	port := strconv.Itoa(startServer(t))

	out := runCli(t, "RPUSH l a b\n\nLRANGE l 0 -1\nGET missing\n", "-p", port)
	assert.Equal(t, "2\na\nb\n\n", out)
}

func TestSplitArgs(t *testing.T) {
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"", nil},
		{"  set  k v ", []string{"set", "k", "v"}},
		{`set k "a b\n\x41"`, []string{"set", "k", "a b\nA"}},
		{`set k 'it\'s'`, []string{"set", "k", "it's"}},
		{`set k ""`, []string{"set", "k", ""}},
	} {
		got, err := splitArgs(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}

	for _, bad := range []string{`set "k`, `set 'k`, `set "k"v`} {
		_, err := splitArgs(bad)
		assert.ErrorIs(t, err, errUnbalancedQuotes, bad)
	}
}

func TestHelpEntries(t *testing.T) {
	var out bytes.Buffer
	cli := &RedisCli{config: &RedisCliCfg{}, out: &out}

	cli.cliOutputHelp([]string{"get"})
	assert.Contains(t, out.String(), "GET")
	assert.Contains(t, out.String(), "arity: 1 arguments")
	assert.Contains(t, out.String(), "group: string")

	out.Reset()
	cli.cliOutputHelp([]string{"@list"})
	assert.Contains(t, out.String(), "LPUSH")
	assert.NotContains(t, out.String(), "SADD")

	assert.Contains(t, commandNames(), "smembers")
}
