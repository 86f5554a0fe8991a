// Package config loads process settings.
//
// PRECEDENCE (lowest to highest):
//
//	built-in defaults → YAML file (--config) → environment variables
//
// The YAML file may also list canvas_defaults: live canvas configuration
// entries that are seeded into durable storage at boot when absent. They
// never overwrite a value an admin has already changed.
//
// Example file:
//
//	port: 8080
//	db_driver: sqlite
//	db_path: data/pixelboard.db
//	admin_user_id: "80351110224678912"
//	canvas_defaults:
//	  - key: pixel_timeout_ms
//	    value: 15000
//	    public: true
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CanvasDefault is one entry under canvas_defaults.
type CanvasDefault struct {
	Key    string `yaml:"key"`
	Value  any    `yaml:"value"`
	Public bool   `yaml:"public"`
}

// Config holds every process setting.
type Config struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	DBDriver string `yaml:"db_driver"`
	// DBDSN is used as-is when set; otherwise sqlite falls back to DBPath.
	DBDSN  string `yaml:"db_dsn"`
	DBPath string `yaml:"db_path"`

	JWTSecret   string `yaml:"jwt_secret"`
	AdminUserID string `yaml:"admin_user_id"`

	DiscordClientID     string `yaml:"discord_client_id"`
	DiscordClientSecret string `yaml:"discord_client_secret"`
	DiscordCallbackURL  string `yaml:"discord_callback_url"`
	// CookieSecure marks the session cookie Secure. Turn it off only for
	// plain-http local development.
	CookieSecure bool `yaml:"cookie_secure"`

	OpenAIAPIKey string `yaml:"openai_api_key"`

	TimeoutSweepInterval    time.Duration `yaml:"timeout_sweep_interval"`
	SocketMessagesPerSecond float64       `yaml:"socket_messages_per_second"`
	SocketBurst             int           `yaml:"socket_burst"`
	BroadcastQueueSize      int           `yaml:"broadcast_queue_size"`

	CanvasDefaults []CanvasDefault `yaml:"canvas_defaults"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:                    8080,
		LogLevel:                "info",
		DBDriver:                "sqlite",
		DBPath:                  "data/pixelboard.db",
		CookieSecure:            true,
		TimeoutSweepInterval:    60 * time.Second,
		SocketMessagesPerSecond: 20,
		SocketBurst:             40,
		BroadcastQueueSize:      256,
	}
}

// Load builds the configuration. path may be empty. getenv is os.Getenv in
// production and a map lookup in tests.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	if cfg.DiscordCallbackURL == "" {
		cfg.DiscordCallbackURL = fmt.Sprintf("http://localhost:%d/auth/discord/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("DB_PATH", &c.DBPath)
	str("JWT_SECRET", &c.JWTSecret)
	str("ADMIN_USER_ID", &c.AdminUserID)
	str("DISCORD_CLIENT_ID", &c.DiscordClientID)
	str("DISCORD_CLIENT_SECRET", &c.DiscordClientSecret)
	str("DISCORD_CALLBACK_URL", &c.DiscordCallbackURL)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)

	var errs []error
	if v := getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: PORT %q: %w", v, err))
		}
		c.Port = n
	}
	if v := getenv("COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: COOKIE_SECURE %q: %w", v, err))
		}
		c.CookieSecure = b
	}
	if v := getenv("TIMEOUT_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: TIMEOUT_SWEEP_INTERVAL %q: %w", v, err))
		}
		c.TimeoutSweepInterval = d
	}
	if v := getenv("SOCKET_MESSAGES_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: SOCKET_MESSAGES_PER_SECOND %q: %w", v, err))
		}
		c.SocketMessagesPerSecond = f
	}
	return errors.Join(errs...)
}

// Validate reports every setting that cannot work, not just the first.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DSN() == "" {
			errs = append(errs, errors.New("config: sqlite needs db_path or db_dsn"))
		}
	case "postgres":
		if c.DBDSN == "" {
			errs = append(errs, errors.New("config: postgres needs db_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown db_driver %q", c.DBDriver))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: jwt_secret must be at least 16 characters"))
	}
	if c.TimeoutSweepInterval <= 0 {
		errs = append(errs, errors.New("config: timeout_sweep_interval must be positive"))
	}
	if c.SocketMessagesPerSecond <= 0 || c.SocketBurst <= 0 {
		errs = append(errs, errors.New("config: socket rate limit must be positive"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	for i, d := range c.CanvasDefaults {
		if strings.TrimSpace(d.Key) == "" {
			errs = append(errs, fmt.Errorf("config: canvas_defaults[%d] has no key", i))
		}
	}
	return errors.Join(errs...)
}

// DSN is the data source name handed to the driver.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	return ""
}

// AuthEnabled reports whether logins can be issued and verified.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
