package config

import (
	"os"
	"path/filepath"
)

// Config is the process configuration of anypush (not the push settings,
// which live in the settings store).
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Sync     SyncConfig     `json:"sync"`
	HTTP     HTTPConfig     `json:"http"`
	Telegram TelegramConfig `json:"telegram"`
	Keyring  KeyringConfig  `json:"keyring"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram mirrors log lines at or above MinLevel to the Telegram log chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the settings backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./anypush.db", "busy_timeout": "5s" }
type StorageConfig struct {
	Driver      string      `json:"driver"` // file | sqlite | redis | memory
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // literal or keyring:<name>; never logged
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
}

type DispatchConfig struct {
	// Timeout bounds each push request (Go duration string, default "10s").
	Timeout string `json:"timeout,omitempty"`
}

// SyncConfig schedules the WebDAV upload in serve mode.
type SyncConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec or "@every 6h"; empty disables
	Timezone string `json:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// HTTPConfig controls the local HTTP API.
//
// Security note: prefer a loopback address; set a token when binding elsewhere.
type HTTPConfig struct {
	Enabled      bool     `json:"enabled"`
	Addr         string   `json:"addr,omitempty"`  // default: "127.0.0.1:7717"
	Token        string   `json:"token,omitempty"` // optional bearer token; never logged
	CORSOrigins  []string `json:"cors_origins,omitempty"`
	Profiler     bool     `json:"profiler,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"` // literal or keyring:<name>
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives mirrored log lines; 0 disables the sink.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type KeyringConfig struct {
	Service      string   `json:"service,omitempty"`
	Backends     []string `json:"backends,omitempty"`
	FileDir      string   `json:"file_dir,omitempty"`
	FilePassword string   `json:"file_password,omitempty"`
}

const DefaultHTTPAddr = "127.0.0.1:7717"

// Default is the configuration used when no config file exists: console
// logging and file storage under the user config directory.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: DefaultStoragePath()},
	}
}

// DefaultStoragePath is <user config dir>/anypush/settings.json, or a
// relative path when the user config dir is unknown.
func DefaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "anypush-settings.json")
	}
	return filepath.Join(dir, "anypush", "settings.json")
}
