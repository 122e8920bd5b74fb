// Package config loads settings from defaults, an optional config file, an
// optional .env file and EMAAMUL_* environment variables, in rising order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/emaamul/core/internal/errors"
	"github.com/emaamul/core/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. EMAAMUL_SYNC_INTERVAL.
const EnvPrefix = "EMAAMUL"

// Remote kinds. RemoteNone keeps every outbox entry queued; RemoteMemory
// is an in-process store that does not outlive the process.
const (
	RemoteNone     = "none"
	RemoteMemory   = "memory"
	RemotePostgres = "postgres"
	RemoteRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	DataDir string       `mapstructure:"data_dir"`
	Engines []string     `mapstructure:"engines"`
	Sync    SyncConfig   `mapstructure:"sync"`
	Remote  RemoteConfig `mapstructure:"remote"`
	Auth    AuthConfig   `mapstructure:"auth"`
	Log     LogConfig    `mapstructure:"log"`
	Diag    DiagConfig   `mapstructure:"diag"`
}

type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

type RemoteConfig struct {
	Kind          string `mapstructure:"kind"`
	DatabaseURL   string `mapstructure:"database_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type DiagConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("engines", []string{"modernc", "wasm"})
	v.SetDefault("sync.interval", 5*time.Second)
	v.SetDefault("sync.max_attempts", 10)
	v.SetDefault("sync.probe_url", "")
	v.SetDefault("sync.probe_timeout", 3*time.Second)
	v.SetDefault("sync.watch_interval", 0)
	v.SetDefault("sync.drain_timeout", 2*time.Minute)
	v.SetDefault("remote.kind", RemoteNone)
	v.SetDefault("remote.database_url", "")
	v.SetDefault("remote.redis_addr", "localhost:6379")
	v.SetDefault("remote.redis_password", "")
	v.SetDefault("remote.redis_db", 0)
	v.SetDefault("auth.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("diag.addr", "127.0.0.1:8787")
}

// Options selects the optional sources.
type Options struct {
	// File is a yaml, toml or json config file. Empty means none.
	File string
	// EnvFile is loaded into the environment when it exists.
	EnvFile string
}

// Loader holds the viper instance behind a loaded Config so it can be
// watched.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// Load reads every source and returns the merged Config.
func Load(opts Options) (*Config, *Loader, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperrors.Wrap(apperrors.ErrValidation, "failed to load env file", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrValidation, "failed to read config file", err)
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteNone, "", RemoteMemory, RemotePostgres, RemoteRedis:
	default:
		return apperrors.Newf(apperrors.ErrValidation, "unknown remote kind %q", c.Remote.Kind)
	}
	if c.Remote.Kind == RemotePostgres && c.Remote.DatabaseURL == "" {
		return apperrors.New(apperrors.ErrValidation, "remote.database_url is required for postgres")
	}
	if c.Sync.Interval <= 0 {
		return apperrors.Newf(apperrors.ErrValidation, "sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.MaxAttempts < 0 {
		return apperrors.Newf(apperrors.ErrValidation, "sync.max_attempts must not be negative, got %d", c.Sync.MaxAttempts)
	}
	return nil
}

// Watch re-reads the config file on every change and calls onChange with
// the new Config. Changes that fail to decode are logged and skipped. It is
// a no-op without a config file.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		cfg, err := l.decode()
		if err != nil {
			logging.Warn("ignoring config change", map[string]any{"file": e.Name, "error": err.Error()})
			return
		}
		logging.Info("config reloaded", map[string]any{"file": e.Name})
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// ApplyLogging configures the global logger and returns the closer of the
// log file, if any.
func ApplyLogging(c LogConfig) io.Closer {
	var file *logging.FileOptions
	if c.File != "" {
		file = &logging.FileOptions{Path: c.File, MaxSizeMB: c.MaxSizeMB, MaxBackups: c.MaxBackups}
	}
	return logging.Configure(logging.ParseLevel(c.Level), file)
}

// String renders c with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.Auth.Secret != "" {
		masked.Auth.Secret = "***"
	}
	if masked.Remote.RedisPassword != "" {
		masked.Remote.RedisPassword = "***"
	}
	if masked.Remote.DatabaseURL != "" {
		masked.Remote.DatabaseURL = "***"
	}
	type plain Config
	return fmt.Sprintf("%+v", plain(masked))
}
