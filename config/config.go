package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lit-response/triageboard/event"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Reconnect struct {
	Enabled         bool          `mapstructure:"enabled"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

type Stream struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	Reconnect        Reconnect     `mapstructure:"reconnect"`
}

type Backend struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Dispatch struct {
	ApproveDelay time.Duration `mapstructure:"approve_delay"`
}

type Map struct {
	Fallback event.Coordinates `mapstructure:"fallback"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type Metrics struct {
	Listen string `mapstructure:"listen"` // empty disables /metrics
}

type Mock struct {
	Listen   string        `mapstructure:"listen"`
	Path     string        `mapstructure:"path"`
	Spacing  time.Duration `mapstructure:"spacing"`
	Interval time.Duration `mapstructure:"interval"`
}

type Root struct {
	Stream   Stream   `mapstructure:"stream"`
	Backend  Backend  `mapstructure:"backend"`
	Dispatch Dispatch `mapstructure:"dispatch"`
	Map      Map      `mapstructure:"map"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Mock     Mock     `mapstructure:"mock"`
	Seed     string   `mapstructure:"seed"` // YAML file of raw messages
}

// SetDefaults registers a default for every key so env overrides work even
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", "ws://localhost:8000/ws")
	v.SetDefault("stream.handshake_timeout", 10*time.Second)
	v.SetDefault("stream.reconnect.enabled", true)
	v.SetDefault("stream.reconnect.initial_interval", 500*time.Millisecond)
	v.SetDefault("stream.reconnect.max_interval", 10*time.Second)
	v.SetDefault("stream.reconnect.max_elapsed", time.Duration(0))
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("dispatch.approve_delay", time.Second)
	v.SetDefault("map.fallback.latitude", 12.9716)
	v.SetDefault("map.fallback.longitude", 77.5946)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("mock.listen", ":8000")
	v.SetDefault("mock.path", "/ws")
	v.SetDefault("mock.spacing", 3*time.Second)
	v.SetDefault("mock.interval", 15*time.Second)
	v.SetDefault("seed", "")
}

// Guess lists the config files tried when none is given, per CONFIG_ENV.
func Guess() []string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("config", "config.yaml"),
	}
}

// Load reads path, or the first file from Guess that exists, layers
// TRIAGE_* environment variables on top and validates the result. A missing
// guessed file is not an error; defaults apply.
func Load(v *viper.Viper, path string) (*Root, error) {
	SetDefaults(v)
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		for _, p := range Guess() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Root) Validate() error {
	u, err := url.Parse(r.Stream.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: stream.url %q must be a ws:// or wss:// address", ErrInvalidConfig, r.Stream.URL)
	}
	if r.Backend.URL != "" {
		b, err := url.Parse(r.Backend.URL)
		if err != nil || (b.Scheme != "http" && b.Scheme != "https") || b.Host == "" {
			return fmt.Errorf("%w: backend.url %q must be an http(s) address", ErrInvalidConfig, r.Backend.URL)
		}
	}
	if !r.Map.Fallback.Valid() {
		return fmt.Errorf("%w: map.fallback %+v is out of range", ErrInvalidConfig, r.Map.Fallback)
	}
	switch r.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, r.Log.Format)
	}
	if r.Dispatch.ApproveDelay < 0 {
		return fmt.Errorf("%w: dispatch.approve_delay is negative", ErrInvalidConfig)
	}
	return nil
}

// LoadSeed reads a YAML list of raw stream messages.
func LoadSeed(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var raws []map[string]any
	if err := yaml.NewDecoder(f).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return raws, nil
}
