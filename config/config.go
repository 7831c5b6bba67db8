// Package config loads the server configuration from TOML or YAML files.
//
// Both formats accept $ENV{NAME:default} anywhere in the file; the token is
// replaced by the environment variable NAME, or by default when NAME is
// unset or empty.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/fzft/go-avocado/log"
	"github.com/fzft/go-avocado/scheduler"
)

const (
	// QueueClient serves regular client commands.
	QueueClient = "CLIENT"
	// QueueAdmin serves commands flagged as administrative.
	QueueAdmin = "ADMIN"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Scheduler  SchedulerConfig  `toml:"scheduler" yaml:"scheduler"`
	Dispatcher DispatcherConfig `toml:"dispatcher" yaml:"dispatcher"`
	Log        LogConfig        `toml:"log" yaml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" yaml:"bind"`
	Port int    `toml:"port" yaml:"port"`
	// MaxIdleTime closes connections idle for longer; "0s" disables it.
	MaxIdleTime string `toml:"max_idle_time" yaml:"max_idle_time"`
	// Hz is how many times per second the cron runs.
	Hz                int    `toml:"hz" yaml:"hz"`
	MaxClients        int    `toml:"max_clients" yaml:"max_clients"`
	ActiveExpireLimit int    `toml:"active_expire_limit" yaml:"active_expire_limit"`
	ShutdownTimeout   string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type SchedulerConfig struct {
	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
	Backend     string `toml:"backend" yaml:"backend"`
}

type DispatcherConfig struct {
	Queues []QueueConfig `toml:"queue" yaml:"queues"`
}

type QueueConfig struct {
	Name     string `toml:"name" yaml:"name"`
	Threads  int    `toml:"threads" yaml:"threads"`
	MaxReady int    `toml:"max_ready" yaml:"max_ready"`
}

type LogConfig struct {
	Level    string   `toml:"level" yaml:"level"`
	Location string   `toml:"location" yaml:"location"`
	Color    bool     `toml:"color" yaml:"color"`
	Output   []string `toml:"output" yaml:"output"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:              "127.0.0.1",
			Port:              6380,
			MaxIdleTime:       "0s",
			Hz:                10,
			MaxClients:        10000,
			ActiveExpireLimit: 200,
			ShutdownTimeout:   "5s",
		},
		Scheduler: SchedulerConfig{
			Concurrency: 2,
			Backend:     "auto",
		},
		Dispatcher: DispatcherConfig{
			Queues: []QueueConfig{
				{Name: QueueClient, Threads: 4, MaxReady: 4096},
				{Name: QueueAdmin, Threads: 1, MaxReady: 64},
			},
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads path on top of Default. The format follows the extension:
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	if err := Decode(data, filepath.Ext(path), cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode expands environment references in data and decodes it into cfg
// using the format named by ext.
func Decode(data []byte, ext string, cfg *Config) error {
	data = expandEnv(data)
	switch strings.ToLower(ext) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(cfg)
	}
	return fmt.Errorf("unsupported config format %q", ext)
}

var envReg = regexp.MustCompile(`\$ENV\{(.*?)\}`)

func expandEnv(data []byte) []byte {
	return envReg.ReplaceAllFunc(data, func(match []byte) []byte {
		inner := envReg.FindSubmatch(match)[1]
		name, def, _ := bytes.Cut(inner, []byte(":"))
		if env := os.Getenv(string(name)); env != "" {
			return []byte(env)
		}
		return def
	})
}

func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Hz < 1 || c.Server.Hz > 500 {
		add("server.hz %d must be within 1..500", c.Server.Hz)
	}
	if c.Server.MaxClients < 1 {
		add("server.max_clients must be positive")
	}
	if c.Server.ActiveExpireLimit < 0 {
		add("server.active_expire_limit must not be negative")
	}
	checkDuration := func(name, v string) {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			add("%s %q is not a valid duration", name, v)
		}
	}
	checkDuration("server.max_idle_time", c.Server.MaxIdleTime)
	checkDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)

	if c.Scheduler.Concurrency < 1 {
		add("scheduler.concurrency must be positive")
	}
	if _, err := scheduler.ParseBackend(c.Scheduler.Backend); err != nil {
		add("scheduler.backend %q unknown", c.Scheduler.Backend)
	}

	seen := make(map[string]bool)
	for _, q := range c.Dispatcher.Queues {
		switch {
		case q.Name == "":
			add("dispatcher queue without a name")
		case seen[q.Name]:
			add("dispatcher queue %q defined twice", q.Name)
		}
		seen[q.Name] = true
		if q.Threads < 1 {
			add("dispatcher queue %q needs at least one thread", q.Name)
		}
		if q.MaxReady < 0 {
			add("dispatcher queue %q max_ready must not be negative", q.Name)
		}
	}
	for _, name := range []string{QueueClient, QueueAdmin} {
		if !seen[name] {
			add("dispatcher queue %q is required", name)
		}
	}

	if err := log.ValidLevel(c.Log.Level); err != nil {
		add("log.level %q unknown", c.Log.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Bind, strconv.Itoa(s.Port))
}

// IdleTimeout is MaxIdleTime parsed; it must have been validated.
func (s ServerConfig) IdleTimeout() time.Duration {
	d, _ := time.ParseDuration(s.MaxIdleTime)
	return d
}

func (s ServerConfig) ShutdownGrace() time.Duration {
	d, _ := time.ParseDuration(s.ShutdownTimeout)
	return d
}

func (s SchedulerConfig) BackendHint() scheduler.Backend {
	b, _ := scheduler.ParseBackend(s.Backend)
	return b
}

func (l LogConfig) Options() log.Options {
	return log.Options{
		Level:    l.Level,
		Location: l.Location,
		Color:    l.Color,
		Output:   l.Output,
	}
}
