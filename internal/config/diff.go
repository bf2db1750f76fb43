package config

import (
	"reflect"
	"strings"

	logx "anypush/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs plus
// log fields describing the new values. Secrets (tokens, passwords) are only
// ever reported as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	section := func(name string, differs bool, f ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, name)
		fields = append(fields, f...)
	}

	o, n := oldCfg, newCfg

	section("logging", !reflect.DeepEqual(o.Logging, n.Logging),
		logx.String("logging.level", n.Logging.Level),
		logx.Bool("logging.file", n.Logging.File.Enabled),
		logx.Bool("logging.telegram", n.Logging.Telegram.Enabled),
	)
	section("storage",
		o.Storage.Driver != n.Storage.Driver || o.Storage.Path != n.Storage.Path ||
			o.Storage.BusyTimeout != n.Storage.BusyTimeout ||
			o.Storage.Redis.Addr != n.Storage.Redis.Addr || o.Storage.Redis.DB != n.Storage.Redis.DB ||
			o.Storage.Redis.Key != n.Storage.Redis.Key || o.Storage.Redis.Password != n.Storage.Redis.Password,
		logx.String("storage.driver", n.Storage.Driver),
		logx.Bool("storage.redis_password_set", set(n.Storage.Redis.Password)),
	)
	section("dispatch", o.Dispatch != n.Dispatch,
		logx.String("dispatch.timeout", n.Dispatch.Timeout),
	)
	section("sync", o.Sync != n.Sync,
		logx.String("sync.schedule", n.Sync.Schedule),
		logx.String("sync.timezone", n.Sync.Timezone),
	)
	section("http",
		o.HTTP.Enabled != n.HTTP.Enabled || o.HTTP.Addr != n.HTTP.Addr || o.HTTP.Token != n.HTTP.Token ||
			o.HTTP.Profiler != n.HTTP.Profiler || !reflect.DeepEqual(o.HTTP.CORSOrigins, n.HTTP.CORSOrigins) ||
			o.HTTP.ReadTimeout != n.HTTP.ReadTimeout || o.HTTP.WriteTimeout != n.HTTP.WriteTimeout,
		logx.Bool("http.enabled", n.HTTP.Enabled),
		logx.String("http.addr", n.HTTP.Addr),
		logx.Bool("http.token_set", set(n.HTTP.Token)),
		logx.Int("http.cors_origins", len(n.HTTP.CORSOrigins)),
	)
	section("telegram",
		o.Telegram.Token != n.Telegram.Token || o.Telegram.LogChatID != n.Telegram.LogChatID ||
			o.Telegram.PollTimeout != n.Telegram.PollTimeout ||
			!reflect.DeepEqual(o.Telegram.OwnerUserIDs, n.Telegram.OwnerUserIDs),
		logx.Bool("telegram.token_set", set(n.Telegram.Token)),
		logx.Int("telegram.owner_count", len(n.Telegram.OwnerUserIDs)),
		logx.Bool("telegram.log_chat_set", n.Telegram.LogChatID != 0),
	)
	section("keyring", !reflect.DeepEqual(o.Keyring, n.Keyring),
		logx.String("keyring.service", n.Keyring.Service),
	)
	return changed, fields
}

// RestartRequired reports sections whose changes only take effect after a
// restart: the storage backend, the HTTP listener and the bot connection.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "storage", "http", "telegram", "keyring":
			out = append(out, c)
		}
	}
	return out
}

func set(s string) bool { return strings.TrimSpace(s) != "" }
