package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	platformconfig "github.com/example/comment-sync/internal/platform/config"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

type ClientConfig struct {
	APIURL    string
	WSURL     string
	Token     string
	PageLimit int
	// NATSURL selects the NATS push source instead of the websocket.
	NATSURL  string
	LogLevel string
}

func LoadClient() (ClientConfig, error) {
	platformconfig.LoadDotEnv()

	cfg := ClientConfig{
		APIURL:   strings.TrimSpace(os.Getenv("COMMENTS_API_URL")),
		WSURL:    strings.TrimSpace(os.Getenv("COMMENTS_WS_URL")),
		Token:    strings.TrimSpace(os.Getenv("COMMENTS_TOKEN")),
		NATSURL:  strings.TrimSpace(os.Getenv("NATS_URL")),
		LogLevel: strings.TrimSpace(os.Getenv("LOG_LEVEL")),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = transport.DefaultBaseURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = transport.WebsocketURL(cfg.APIURL)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}

	limit, err := parseIntWithDefault(os.Getenv("COMMENTS_PAGE_LIMIT"), store.DefaultLimit)
	if err != nil || limit < 1 {
		return ClientConfig{}, fmt.Errorf("COMMENTS_PAGE_LIMIT must be a positive integer")
	}
	cfg.PageLimit = limit
	return cfg, nil
}

func parseIntWithDefault(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
