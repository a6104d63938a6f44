package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "DASHBOARD_"
	envFileVar = "DASHBOARD_CONFIG"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Source    SourceConfig    `koanf:"source"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Logger    LoggerConfig    `koanf:"log"`
	Security  SecurityConfig  `koanf:"security"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SourceConfig describes the remote product-sales endpoint.
type SourceConfig struct {
	URL           string        `koanf:"url"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxBodyBytes  int64         `koanf:"max_body_bytes"`
	DecodeWorkers int           `koanf:"decode_workers"`
}

type DashboardConfig struct {
	CurrencyPrefix string `koanf:"currency_prefix"`
	DefaultTop     int    `koanf:"default_top"`
	MinTop         int    `koanf:"min_top"`
	MaxTop         int    `koanf:"max_top"`
	MinYear        int    `koanf:"min_year"`
	MaxYear        int    `koanf:"max_year"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool          `koanf:"rate_limit_enabled"`
	RateLimitRPS    int           `koanf:"rate_limit_rps"`
	RateLimitBurst  int           `koanf:"rate_limit_burst"`
	RateLimitIdle   time.Duration `koanf:"rate_limit_idle"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Source: SourceConfig{
			URL:           "https://labdados.com/produtos",
			Timeout:       15 * time.Second,
			MaxBodyBytes:  64 << 20,
			DecodeWorkers: 8,
		},
		Dashboard: DashboardConfig{
			CurrencyPrefix: "R$",
			DefaultTop:     5,
			MinTop:         2,
			MaxTop:         10,
			MinYear:        2020,
			MaxYear:        2024,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    100,
			RateLimitBurst:  10,
			RateLimitIdle:   3 * time.Minute,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

// Load layers defaults, an optional YAML file named by DASHBOARD_CONFIG and
// DASHBOARD_* environment variables, in increasing precedence.
//
// Environment keys map the first underscore after the prefix to a section
// separator: DASHBOARD_SOURCE_TIMEOUT -> source.timeout.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// slices decode element-wise over the defaults, so replace them outright
	if k.Exists("security.allowed_origins") {
		cfg.Security.AllowedOrigins = stringList(k, "security.allowed_origins")
	}
	if k.Exists("security.trusted_proxies") {
		cfg.Security.TrustedProxies = stringList(k, "security.trusted_proxies")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if s == strings.ToLower(strings.TrimPrefix(envFileVar, envPrefix)) {
		return ""
	}
	return strings.Replace(s, "_", ".", 1)
}

// stringList accepts both YAML sequences and comma-separated env values.
func stringList(k *koanf.Koanf, path string) []string {
	raw, ok := k.Get(path).(string)
	if !ok {
		return k.Strings(path)
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Source.URL == "" {
		return fmt.Errorf("source URL cannot be empty")
	}

	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source timeout must be positive")
	}

	if c.Source.DecodeWorkers <= 0 {
		return fmt.Errorf("source decode workers must be positive")
	}

	if c.Dashboard.MinTop < 1 || c.Dashboard.MinTop > c.Dashboard.MaxTop {
		return fmt.Errorf("dashboard top range [%d, %d] is invalid", c.Dashboard.MinTop, c.Dashboard.MaxTop)
	}

	if c.Dashboard.DefaultTop < c.Dashboard.MinTop || c.Dashboard.DefaultTop > c.Dashboard.MaxTop {
		return fmt.Errorf("dashboard default top %d outside [%d, %d]", c.Dashboard.DefaultTop, c.Dashboard.MinTop, c.Dashboard.MaxTop)
	}

	if c.Dashboard.MinYear > c.Dashboard.MaxYear {
		return fmt.Errorf("dashboard year range [%d, %d] is invalid", c.Dashboard.MinYear, c.Dashboard.MaxYear)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Security.RateLimitIdle <= 0 {
		return fmt.Errorf("rate limit idle timeout must be positive")
	}

	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
