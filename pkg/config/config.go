package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MaxUploadBytes is the fixed ceiling for a single bottle.
const MaxUploadBytes int64 = 50 << 20

// DefaultDeadline is 2026-01-01 00:00 PST.
var DefaultDeadline = time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC)

// Config holds all runtime configuration. Values are read once at startup.
type Config struct {
	Port    int    `env:"PORT"        envDefault:"1337"`
	Version string `env:"APP_VERSION" envDefault:"1.0.0"`

	DBDriver   string `env:"DB_DRIVER"   envDefault:"postgres"`
	DBHostname string `env:"DB_HOSTNAME"`
	DBUsername string `env:"DB_USERNAME"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_DBNAME"`
	DBSchema   string `env:"DB_SCHEMA"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"onebottle.db"`

	// PublicBaseURL prefixes media locators; the moderation oracle fetches from it.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:1337"`

	SubmissionDeadline time.Time `env:"SUBMISSION_DEADLINE"`

	DailyQuota  int  `env:"DISCOVERY_DAILY_QUOTA"  envDefault:"10"`
	StrictQuota bool `env:"DISCOVERY_STRICT_QUOTA" envDefault:"false"`

	SightengineUser     string        `env:"SIGHTENGINE_API_USER"`
	SightengineSecret   string        `env:"SIGHTENGINE_API_SECRET"`
	SightengineEndpoint string        `env:"SIGHTENGINE_ENDPOINT" envDefault:"https://api.sightengine.com/1.0"`
	ModerationModels    string        `env:"MODERATION_MODELS"    envDefault:"nudity,wad,gore,offensive"`
	ModerationTimeout   time.Duration `env:"MODERATION_TIMEOUT"   envDefault:"20s"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`

	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@hourly"`
	SweepGrace    time.Duration `env:"SWEEP_GRACE"    envDefault:"1h"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SubmissionDeadline.IsZero() {
		cfg.SubmissionDeadline = DefaultDeadline
	}
	if cfg.DailyQuota < 1 {
		return nil, fmt.Errorf("DISCOVERY_DAILY_QUOTA must be positive, got %d", cfg.DailyQuota)
	}
	if cfg.ModerationTimeout <= 0 {
		return nil, fmt.Errorf("MODERATION_TIMEOUT must be positive, got %s", cfg.ModerationTimeout)
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return &cfg, nil
}

// DSN builds the database connection string for the configured driver.
func (c *Config) DSN() (string, error) {
	switch c.DBDriver {
	case "sqlite":
		return c.SQLitePath, nil
	case "postgres":
		if c.DBHostname == "" || c.DBUsername == "" || c.DBName == "" {
			return "", fmt.Errorf("missing DB env vars; need DB_HOSTNAME, DB_USERNAME, DB_DBNAME")
		}
		u := &url.URL{
			Scheme: "postgres",
			Host:   c.DBHostname,
			Path:   c.DBName,
		}
		if !strings.Contains(c.DBHostname, ":") {
			u.Host += ":5432"
		}
		u.User = url.UserPassword(c.DBUsername, c.DBPassword)
		q := u.Query()
		if strings.TrimSpace(c.DBSchema) != "" {
			q.Set("search_path", c.DBSchema)
		}
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "disable")
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
}
