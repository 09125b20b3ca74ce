package config

import (
	"errors"
	"os"
	"strings"
	"time"

	platformconfig "github.com/example/comment-sync/internal/platform/config"
)

type DevConfig struct {
	App       platformconfig.AppConfig
	JWTSecret []byte
	TokenTTL  time.Duration
	// DatabaseURL selects the Postgres stores; empty means in-memory.
	DatabaseURL string
	// NATSURL enables the NATS event fan-out next to the websocket hub.
	NATSURL        string
	NATSPrefix     string
	AllowedOrigins []string
	Production     bool
}

func LoadDev() (DevConfig, error) {
	app, err := platformconfig.LoadService("devserver")
	if err != nil {
		return DevConfig{}, err
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return DevConfig{}, errors.New("JWT_SECRET is required")
	}

	cfg := DevConfig{
		App:         app,
		JWTSecret:   []byte(secret),
		TokenTTL:    parseDurationWithDefault(os.Getenv("TOKEN_TTL"), 7*24*time.Hour),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSPrefix:  strings.TrimSpace(os.Getenv("NATS_SUBJECT_PREFIX")),
		Production:  strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "production"),
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	if cfg.Production && cfg.DatabaseURL == "" {
		return DevConfig{}, errors.New("DATABASE_URL is required in production")
	}
	return cfg, nil
}

func parseDurationWithDefault(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
