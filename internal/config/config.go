package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix       = "SMPTWEAKS"
	DefaultFileName = "config.yml"
)

// Config is the full set of recognized options.
type Config struct {
	LogMode      string             `mapstructure:"log_mode" yaml:"log_mode"`
	DataDir      string             `mapstructure:"data_dir" yaml:"data_dir"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	ServerLevels ServerLevelsConfig `mapstructure:"server_levels" yaml:"server_levels"`
	XPMultiplier float64            `mapstructure:"xp_multiplier" yaml:"xp_multiplier"`
	Rewards      RewardsConfig      `mapstructure:"rewards" yaml:"rewards"`
	Workers      WorkersConfig      `mapstructure:"workers" yaml:"workers"`
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Metrics      ToggleConfig       `mapstructure:"metrics" yaml:"metrics"`
	Otel         OtelConfig         `mapstructure:"otel" yaml:"otel"`
}

type StoreConfig struct {
	Kind           string        `mapstructure:"kind" yaml:"kind"`
	Dialect        string        `mapstructure:"dialect" yaml:"dialect"`
	TableName      string        `mapstructure:"table_name" yaml:"table_name"`
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Database       string        `mapstructure:"database" yaml:"database"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	PoolSize       int           `mapstructure:"pool_size" yaml:"pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// Timezone is "utc" or "local".
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type ServerLevelsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	BaseXP  int  `mapstructure:"base_xp" yaml:"base_xp"`
	StepXP  int  `mapstructure:"step_xp" yaml:"step_xp"`
}

type RewardsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

type WorkersConfig struct {
	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval" yaml:"autosave_interval"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type ToggleConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// OtelConfig controls span export. An empty Endpoint prints spans to stdout.
type OtelConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	// Headers is a comma separated list of key=value pairs.
	Headers     string  `mapstructure:"headers" yaml:"headers"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		LogMode: "development",
		DataDir: "./data",
		Store: StoreConfig{
			Kind:           "embedded",
			Dialect:        "postgres",
			TableName:      "smptweaks_player",
			PoolSize:       10,
			ConnectTimeout: 5 * time.Second,
			Timezone:       "utc",
		},
		Cache: CacheConfig{TTL: 10 * time.Minute},
		ServerLevels: ServerLevelsConfig{
			Enabled: true,
			BaseXP:  100,
			StepXP:  50,
		},
		XPMultiplier: 1.0,
		Rewards: RewardsConfig{
			Enabled:  true,
			Cooldown: 24 * time.Hour,
		},
		Workers: WorkersConfig{
			Concurrency:      4,
			AutosaveInterval: 5 * time.Minute,
		},
		HTTP: HTTPConfig{Addr: ":8085"},
		Otel: OtelConfig{SampleRatio: 0.1},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_mode", d.LogMode)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.dialect", d.Store.Dialect)
	v.SetDefault("store.table_name", d.Store.TableName)
	v.SetDefault("store.host", "")
	v.SetDefault("store.port", 0)
	v.SetDefault("store.database", "")
	v.SetDefault("store.username", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.pool_size", d.Store.PoolSize)
	v.SetDefault("store.connect_timeout", d.Store.ConnectTimeout)
	v.SetDefault("store.timezone", d.Store.Timezone)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("server_levels.enabled", d.ServerLevels.Enabled)
	v.SetDefault("server_levels.base_xp", d.ServerLevels.BaseXP)
	v.SetDefault("server_levels.step_xp", d.ServerLevels.StepXP)
	v.SetDefault("xp_multiplier", d.XPMultiplier)
	v.SetDefault("rewards.enabled", d.Rewards.Enabled)
	v.SetDefault("rewards.cooldown", d.Rewards.Cooldown)
	v.SetDefault("workers.concurrency", d.Workers.Concurrency)
	v.SetDefault("workers.autosave_interval", d.Workers.AutosaveInterval)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.headers", "")
	v.SetDefault("otel.sample_ratio", d.Otel.SampleRatio)
}

// Load reads path (when it exists) and applies SMPTWEAKS_* environment
// overrides, e.g. SMPTWEAKS_STORE_KIND.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
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

// Validate checks the options that cannot fall back to a default. Missing
// connection settings of a networked store are not checked here; the store
// reports them when it is opened and the manager starts degraded.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Store.Kind)) {
	case "embedded", "", "networked":
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not embedded or networked", c.Store.Kind))
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Dialect)) {
	case "", "postgres", "postgresql", "mysql", "mariadb":
	default:
		errs = append(errs, fmt.Errorf("store.dialect %q is not postgres or mysql", c.Store.Dialect))
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Timezone)) {
	case "", "utc", "local":
	default:
		errs = append(errs, fmt.Errorf("store.timezone %q is not utc or local", c.Store.Timezone))
	}
	if c.Store.PoolSize <= 0 {
		errs = append(errs, errors.New("store.pool_size must be positive"))
	}
	if c.ServerLevels.BaseXP < 1 {
		errs = append(errs, errors.New("server_levels.base_xp must be at least 1"))
	}
	if c.ServerLevels.StepXP < 0 {
		errs = append(errs, errors.New("server_levels.step_xp must not be negative"))
	}
	if c.XPMultiplier <= 0 {
		errs = append(errs, errors.New("xp_multiplier must be positive; disable server_levels to stop XP gain"))
	}
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		errs = append(errs, errors.New("otel.sample_ratio must be between 0 and 1"))
	}
	if c.Workers.Concurrency < 1 {
		errs = append(errs, errors.New("workers.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

// Location resolves store.timezone.
func (s StoreConfig) Location() *time.Location {
	if strings.EqualFold(strings.TrimSpace(s.Timezone), "local") {
		return time.Local
	}
	return time.UTC
}

// WriteDefault writes the default configuration to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("encode default config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}
