// Package config loads canvas settings from defaults, an optional
// canvas.yaml and CANVAS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Store struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	Database     string        `mapstructure:"database"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PasswordKey names a secret (env CANVAS_SECRET_<KEY> or keychain)
	// holding the store password, kept out of the DSN.
	PasswordKey string `mapstructure:"password_key"`
}

type Daemon struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type Presence struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Name    string        `mapstructure:"name"`
}

type MCP struct {
	// Addr enables the in-app MCP endpoint, e.g. 127.0.0.1:8765.
	Addr string `mapstructure:"addr"`
}

type Config struct {
	CanvasID      string   `mapstructure:"canvas_id"`
	ParticipantID string   `mapstructure:"participant_id"`
	DataDir       string   `mapstructure:"data_dir"`
	Store         Store    `mapstructure:"store"`
	Daemon        Daemon   `mapstructure:"daemon"`
	Presence      Presence `mapstructure:"presence"`
	MCP           MCP      `mapstructure:"mcp"`
}

// Drivers accepted in store.driver.
var Drivers = []string{"sqlite", "mysql", "postgres", "mongodb"}

func defaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".canvas"
	}
	return filepath.Join(home, ".canvas")
}

func setDefaults(v *viper.Viper) {
	// keys without a real default are still registered so that
	// environment overrides reach Unmarshal
	v.SetDefault("canvas_id", "")
	v.SetDefault("participant_id", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.password_key", "")
	v.SetDefault("presence.name", "")
	v.SetDefault("mcp.addr", "")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database", "canvas")
	v.SetDefault("store.poll_interval", "500ms")
	v.SetDefault("daemon.url", "ws://127.0.0.1:8005")
	v.SetDefault("daemon.reconnect_delay", "2s")
	v.SetDefault("presence.timeout", "15m")
}

// Load reads the configuration. A missing config file is not an error.
// Every key can be overridden with CANVAS_<KEY>, dots becoming
// underscores (CANVAS_STORE_DRIVER).
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetConfigName("canvas")
	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// an empty CANVAS_DAEMON_URL must be able to turn the daemon off
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if override := os.Getenv("CANVAS_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the driver, expands a leading ~ in data_dir and fills
// the SQLite DSN when none is set.
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	known := false
	for _, d := range Drivers {
		if d == c.Store.Driver {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	dataDir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return fmt.Errorf("expand data_dir: %w", err)
	}
	c.DataDir = dataDir
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = filepath.Join(c.DataDir, "canvas.db")
	}
	if c.Store.Driver != "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
	}
	if c.Presence.Timeout <= 0 {
		return fmt.Errorf("presence.timeout must be positive")
	}
	return nil
}
