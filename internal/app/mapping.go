package app

import (
	"strings"
	"time"

	"anypush/internal/cloudsync"
	"anypush/internal/config"
	"anypush/internal/credential"
	"anypush/internal/dispatch"
	"anypush/internal/storage"
	"anypush/internal/transport/httpapi"
	"anypush/internal/transport/telegram"
	logx "anypush/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID != 0,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config, creds *credential.Store) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	password, err := creds.Resolve(sc.Redis.Password)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:        strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:          strings.TrimSpace(sc.Path),
		BusyTimeout:   busy,
		RedisAddr:     sc.Redis.Addr,
		RedisPassword: password,
		RedisDB:       sc.Redis.DB,
		RedisKey:      sc.Redis.Key,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	timeout, err := config.ParseDurationOrDefault("dispatch.timeout", cfg.Dispatch.Timeout, dispatch.DefaultTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{Timeout: timeout}, nil
}

func mapScheduleConfig(cfg *config.Config) (cloudsync.ScheduleConfig, error) {
	timeout, err := config.ParseDurationOrDefault("sync.timeout", cfg.Sync.Timeout, time.Minute)
	if err != nil {
		return cloudsync.ScheduleConfig{}, err
	}
	return cloudsync.ScheduleConfig{
		Spec:     strings.TrimSpace(cfg.Sync.Schedule),
		Timezone: cfg.Sync.Timezone,
		Timeout:  timeout,
	}, nil
}

func mapHTTPConfig(cfg *config.Config, creds *credential.Store) (httpapi.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 15*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	token, err := creds.Resolve(strings.TrimSpace(hc.Token))
	if err != nil {
		return httpapi.Config{}, err
	}
	addr := strings.TrimSpace(hc.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpapi.Config{
		Addr:         addr,
		Token:        token,
		CORSOrigins:  hc.CORSOrigins,
		Profiler:     hc.Profiler,
		ReadTimeout:  read,
		WriteTimeout: write,
	}, nil
}

func mapTelegramConfig(cfg *config.Config, creds *credential.Store) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	token, err := creds.Resolve(strings.TrimSpace(cfg.Telegram.Token))
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       token,
		PollTimeout: poll,
		LogChatID:   cfg.Telegram.LogChatID,
	}, nil
}

func mapCredentialConfig(cfg *config.Config) credential.Config {
	return credential.Config{
		Service:      cfg.Keyring.Service,
		Backends:     cfg.Keyring.Backends,
		FileDir:      cfg.Keyring.FileDir,
		FilePassword: cfg.Keyring.FilePassword,
	}
}
