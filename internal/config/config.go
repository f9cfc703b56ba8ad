// Package config loads and validates newsroom configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
)

// FlagKeyAnnotation marks a command flag with the config key it overrides.
const FlagKeyAnnotation = "newsroom/config-key"

// Config captures every configuration knob.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Extract ExtractConfig `mapstructure:"extract"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Publish PublishConfig `mapstructure:"publish"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig drives the scrape stage downloader.
type FetchConfig struct {
	Workers       int           `mapstructure:"workers"`
	Tries         int           `mapstructure:"tries"`
	Sleep         time.Duration `mapstructure:"sleep"`
	Multiplier    float64       `mapstructure:"multiplier"`
	SuccessStatus int           `mapstructure:"success_status"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodySize   int           `mapstructure:"max_body_size"`
	// RateLimitRPS caps requests per second per host; 0 disables the limiter.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	Seed           uint64  `mapstructure:"seed"`
}

// ExtractConfig sizes the transform pipeline.
type ExtractConfig struct {
	Workers   int `mapstructure:"workers"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// StoreConfig selects the record store codec.
type StoreConfig struct {
	Codec      string `mapstructure:"codec"`
	Level      int    `mapstructure:"level"`
	FastRead   bool   `mapstructure:"fast_read"`
	FlushEvery int    `mapstructure:"flush_every"`
}

// MetricsConfig controls the Prometheus endpoint and progress reporting.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables the server.
	Addr             string        `mapstructure:"addr"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// PublishConfig configures run notifications and store uploads.
type PublishConfig struct {
	ProjectID string `mapstructure:"project_id"`
	// Topic receives run summaries; empty disables notifications.
	Topic string `mapstructure:"topic"`
	// Backend is where the publish command uploads stores: local or gcs.
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// Load builds a Config from defaults, an optional file, NEWSROOM_*
// environment variables and finally any changed flag carrying a
// FlagKeyAnnotation.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BindFlag annotates flag name on fs so Load maps it onto key.
func BindFlag(fs *pflag.FlagSet, name, key string) error {
	if err := fs.SetAnnotation(name, FlagKeyAnnotation, []string{key}); err != nil {
		return fmt.Errorf("bind flag %s: %w", name, err)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[FlagKeyAnnotation]
		if len(keys) == 0 {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	cpus := runtime.NumCPU()
	v.SetDefault("logging.development", false)
	v.SetDefault("fetch.workers", 16)
	v.SetDefault("fetch.tries", 3)
	v.SetDefault("fetch.sleep", "2s")
	v.SetDefault("fetch.multiplier", 1.5)
	v.SetDefault("fetch.success_status", 200)
	v.SetDefault("fetch.user_agent", "newsroom-builder/1.0 (+https://github.com/JakeFAU/newsroom-builder)")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_body_size", 0)
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("fetch.seed", 0)
	v.SetDefault("extract.workers", cpus)
	v.SetDefault("extract.chunk_size", 20*cpus)
	v.SetDefault("store.codec", "gzip")
	v.SetDefault("store.level", jsonl.DefaultLevel)
	v.SetDefault("store.fast_read", true)
	v.SetDefault("store.flush_every", 100)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.progress_interval", "10s")
	v.SetDefault("publish.backend", "local")
	v.SetDefault("publish.local_dir", "published")
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Fetch.Workers <= 0 {
		errs = append(errs, errors.New("fetch.workers must be > 0"))
	}
	if c.Fetch.Tries <= 0 {
		errs = append(errs, errors.New("fetch.tries must be > 0"))
	}
	if c.Fetch.Sleep < 0 {
		errs = append(errs, errors.New("fetch.sleep must not be negative"))
	}
	if c.Fetch.Multiplier <= 0 {
		errs = append(errs, errors.New("fetch.multiplier must be > 0"))
	}
	if c.Fetch.RateLimitRPS < 0 {
		errs = append(errs, errors.New("fetch.rate_limit_rps must not be negative"))
	}
	if c.Extract.Workers <= 0 {
		errs = append(errs, errors.New("extract.workers must be > 0"))
	}
	if c.Extract.ChunkSize <= 0 {
		errs = append(errs, errors.New("extract.chunk_size must be > 0"))
	}
	if _, err := c.Store.StoreCodec(); err != nil {
		errs = append(errs, err)
	}
	if c.Store.FlushEvery <= 0 {
		errs = append(errs, errors.New("store.flush_every must be > 0"))
	}
	if c.Metrics.ProgressInterval <= 0 {
		errs = append(errs, errors.New("metrics.progress_interval must be > 0"))
	}
	if c.Publish.Topic != "" && c.Publish.ProjectID == "" {
		errs = append(errs, errors.New("publish.project_id must be set when publish.topic is set"))
	}
	switch c.Publish.Backend {
	case "local":
		if c.Publish.LocalDir == "" {
			errs = append(errs, errors.New("publish.local_dir must be set for the local backend"))
		}
	case "gcs":
		if c.Publish.Bucket == "" {
			errs = append(errs, errors.New("publish.bucket must be set for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("publish.backend must be local or gcs, got %q", c.Publish.Backend))
	}
	return errors.Join(errs...)
}

// StoreCodec resolves the configured codec.
func (s StoreConfig) StoreCodec() (jsonl.Codec, error) {
	kind, err := jsonl.ParseKind(strings.ToLower(s.Codec))
	if err != nil {
		return jsonl.Codec{}, fmt.Errorf("store.codec: %w", err)
	}
	c := jsonl.Codec{Kind: kind, Level: s.Level}
	if kind == jsonl.KindNone || kind == jsonl.KindXZ {
		c.Level = 0
	}
	if err := c.Validate(); err != nil {
		return jsonl.Codec{}, fmt.Errorf("store.level: %w", err)
	}
	return c, nil
}
