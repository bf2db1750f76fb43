package storage

import (
	"encoding/json"
	"errors"
	"strings"

	logx "anypush/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// pick returns the requested subset of all (or a copy of all when keys is empty).
func pick(all map[string]json.RawMessage, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(all))
	if len(keys) == 0 {
		for k, v := range all {
			out[k] = cloneRaw(v)
		}
		return out
	}
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = cloneRaw(v)
		}
	}
	return out
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}

// validate rejects items that are not well-formed JSON before anything is written.
func validate(items map[string]json.RawMessage) error {
	for k, v := range items {
		if strings.TrimSpace(k) == "" {
			return errors.New("storage: empty key")
		}
		if !json.Valid(v) {
			return errors.New("storage: value for " + k + " is not valid JSON")
		}
	}
	return nil
}
