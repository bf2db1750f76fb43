package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks values the strict decoder cannot: enumerations, durations
// and required companions.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for the "+cfg.Storage.Driver+" driver"))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	for path, raw := range map[string]string{
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
		"dispatch.timeout":      cfg.Dispatch.Timeout,
		"sync.timeout":          cfg.Sync.Timeout,
		"http.read_timeout":     cfg.HTTP.ReadTimeout,
		"http.write_timeout":    cfg.HTTP.WriteTimeout,
		"telegram.poll_timeout": cfg.Telegram.PollTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.enabled needs telegram.log_chat_id"))
	}
	if strings.TrimSpace(cfg.Telegram.Token) != "" && len(cfg.Telegram.OwnerUserIDs) == 0 {
		errs = append(errs, errors.New("telegram.owner_user_ids must not be empty when a bot token is set"))
	}
	return errors.Join(errs...)
}
