package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AdapterMemory = "memory"
	AdapterRedis  = "redis"
)

var ErrInvalidConfig = errors.New("invalid config")

type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	LogLevel     string        `mapstructure:"log_level"`
	Secret       string        `mapstructure:"secret"`
	Namespace    string        `mapstructure:"namespace"`
	Namespaces   []string      `mapstructure:"namespaces"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RequestLimit int           `mapstructure:"request_limit"`
	RequestEvery time.Duration `mapstructure:"request_every"`
	Adapter      string        `mapstructure:"adapter"`
	MetricsPath  string        `mapstructure:"metrics_path"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults.
// ROOMCAST_* environment variables win over both, e.g. ROOMCAST_REDIS_URL.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("ROOMCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("namespace", "/")
	v.SetDefault("namespaces", []string{"/"})
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("request_limit", 20)
	v.SetDefault("request_every", "1s")
	v.SetDefault("adapter", AdapterMemory)
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel_prefix", "roomcast")
	v.SetDefault("redis.retry_attempts", 3)
	v.SetDefault("redis.retry_interval", "2s")
	v.SetDefault("redis.connect_timeout", "10s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("adapter", cfg.Adapter).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.Namespace, "/") {
		errs = append(errs, fmt.Errorf("namespace %q must start with /", c.Namespace))
	}
	for _, n := range c.Namespaces {
		if !strings.HasPrefix(n, "/") || strings.Contains(n, ",") {
			errs = append(errs, fmt.Errorf("namespaces: invalid name %q", n))
		}
	}
	if len(c.Namespaces) > 0 && !slices.Contains(c.Namespaces, c.Namespace) {
		errs = append(errs, fmt.Errorf("namespaces must include the default namespace %q", c.Namespace))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive"))
	}
	if c.PingPeriod <= 0 || c.WriteWait <= 0 {
		errs = append(errs, fmt.Errorf("ping_period and write_wait must be positive"))
	}
	switch c.Adapter {
	case AdapterMemory:
	case AdapterRedis:
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis.url is required for the redis adapter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown adapter %q", c.Adapter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
