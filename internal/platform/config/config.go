package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
}

// envFiles are tried in order; the first one that loads wins.
var envFiles = []string{".env", "../../.env", "../../../.env"}

// LoadDotEnv loads variables from the first readable .env file without
// overriding variables already set in the process environment.
// A missing file is not an error.
func LoadDotEnv(paths ...string) bool {
	if len(paths) == 0 {
		paths = envFiles
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return true
		}
	}
	return false
}

// Load reads the common service settings. SERVICE_NAME is required.
func Load() (AppConfig, error) {
	return LoadService("")
}

// LoadService is Load with a fallback service name; an empty fallback
// keeps SERVICE_NAME required.
func LoadService(defaultName string) (AppConfig, error) {
	LoadDotEnv()

	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultName
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}
