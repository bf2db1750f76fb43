package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"anypush/internal/apperr"
	"anypush/internal/storage"
	logx "anypush/pkg/logx"
)

// Store is the Config Store: the three settings aggregates on top of a flat
// storage backend.
type Store struct {
	kv  storage.Store
	log logx.Logger
}

func New(kv storage.Store, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{kv: kv, log: log.With(logx.String("comp", "settings"))}
}

// Get returns the requested keys; absent keys are omitted.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return s.kv.Get(ctx, keys...)
}

// Set replaces each given top-level key wholesale.
func (s *Store) Set(ctx context.Context, partial map[string]json.RawMessage) error {
	return s.kv.Set(ctx, partial)
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return err
	}
	s.log.Info("settings cleared")
	return nil
}

// InitializeDefaults completes pushServices and pushSettings from the defaults
// when they are missing or incomplete, and writes the default syncConfig when
// it is absent. Existing values are never overwritten.
func (s *Store) InitializeDefaults(ctx context.Context) error {
	cur, err := s.kv.Get(ctx, KeyPushServices, KeyPushSettings, KeySyncConfig)
	if err != nil {
		return err
	}

	updates := map[string]json.RawMessage{}

	services, err := decodeDoc(cur[KeyPushServices])
	if err != nil {
		return fmt.Errorf("%s: %w", KeyPushServices, err)
	}
	if !servicesComplete(services) {
		b, err := json.Marshal(MergeDefaults(services, defaultPushServicesDoc()))
		if err != nil {
			return err
		}
		updates[KeyPushServices] = b
	}

	push, err := decodeDoc(cur[KeyPushSettings])
	if err != nil {
		return fmt.Errorf("%s: %w", KeyPushSettings, err)
	}
	if !pushSettingsComplete(push) {
		b, err := json.Marshal(MergeDefaults(push, defaultPushSettingsDoc()))
		if err != nil {
			return err
		}
		updates[KeyPushSettings] = b
	}

	if _, ok := cur[KeySyncConfig]; !ok {
		b, err := json.Marshal(DefaultSyncConfig())
		if err != nil {
			return err
		}
		updates[KeySyncConfig] = b
	}

	if len(updates) == 0 {
		return nil
	}
	if err := s.kv.Set(ctx, updates); err != nil {
		return err
	}
	s.log.Info("settings defaults initialized", logx.String("keys", joinKeys(updates)))
	return nil
}

// Services returns pushServices as raw per-service entries, or nil when the
// aggregate is absent.
func (s *Store) Services(ctx context.Context) (map[string]json.RawMessage, error) {
	cur, err := s.kv.Get(ctx, KeyPushServices)
	if err != nil {
		return nil, err
	}
	raw, ok := cur[KeyPushServices]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Configf(KeyPushServices, "not an object: %v", err)
	}
	return out, nil
}

// PushServices returns the typed pushServices aggregate, or nil when absent.
func (s *Store) PushServices(ctx context.Context) (*PushServices, error) {
	var v PushServices
	ok, err := s.load(ctx, KeyPushServices, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// PushSettings returns the typed pushSettings aggregate, or nil when absent.
func (s *Store) PushSettings(ctx context.Context) (*PushSettings, error) {
	var v PushSettings
	ok, err := s.load(ctx, KeyPushSettings, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// SyncConfig returns the typed syncConfig aggregate, or nil when absent.
func (s *Store) SyncConfig(ctx context.Context) (*SyncConfig, error) {
	var v SyncConfig
	ok, err := s.load(ctx, KeySyncConfig, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Bundle loads all three aggregates, substituting defaults for absent ones.
func (s *Store) Bundle(ctx context.Context) (Bundle, error) {
	b := Bundle{
		PushServices: DefaultPushServices(),
		PushSettings: DefaultPushSettings(),
		SyncConfig:   DefaultSyncConfig(),
	}
	if v, err := s.PushServices(ctx); err != nil {
		return b, err
	} else if v != nil {
		b.PushServices = *v
	}
	if v, err := s.PushSettings(ctx); err != nil {
		return b, err
	} else if v != nil {
		b.PushSettings = *v
	}
	if v, err := s.SyncConfig(ctx); err != nil {
		return b, err
	} else if v != nil {
		b.SyncConfig = *v
	}
	return b, nil
}

// Save validates and normalizes b, then writes all three aggregates in one Set.
// It returns the normalized bundle.
func (s *Store) Save(ctx context.Context, b Bundle) (Bundle, error) {
	b = b.Normalize()
	if err := b.Validate(); err != nil {
		return b, err
	}

	items := map[string]json.RawMessage{}
	for key, v := range map[string]any{
		KeyPushServices: b.PushServices,
		KeyPushSettings: b.PushSettings,
		KeySyncConfig:   b.SyncConfig,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return b, err
		}
		items[key] = raw
	}
	if err := s.kv.Set(ctx, items); err != nil {
		return b, err
	}
	s.log.Info("settings saved", logx.String("sync", string(b.SyncConfig.Type)))
	return b, nil
}

// SyncPayload is the document uploaded to cloud sync: pushSettings and
// pushServices as stored, indented.
func (s *Store) SyncPayload(ctx context.Context) ([]byte, error) {
	cur, err := s.kv.Get(ctx, KeyPushSettings, KeyPushServices)
	if err != nil {
		return nil, err
	}
	doc := map[string]json.RawMessage{
		KeyPushSettings: nullIfMissing(cur[KeyPushSettings]),
		KeyPushServices: nullIfMissing(cur[KeyPushServices]),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Export serializes the whole mapping as indented JSON.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	all, err := s.kv.Get(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(all, "", "  ")
}

// ExportFileName is the suggested download name for an export made at t.
func ExportFileName(t time.Time) string {
	return "anypush-config-" + t.Format("2006-01-02") + ".json"
}

// Import writes every top-level key of data in one atomic Set. Malformed input
// yields an ImportError and leaves the store untouched. Keys are not checked
// against the settings schema; unknown ones are logged and stored as-is.
func (s *Store) Import(ctx context.Context, data []byte) ([]string, error) {
	var doc map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, &apperr.ImportError{Err: err}
	}
	if doc == nil {
		return nil, &apperr.ImportError{Err: errors.New("top-level value must be a JSON object")}
	}
	if dec.More() {
		return nil, &apperr.ImportError{Err: errors.New("trailing data after JSON object")}
	}
	for k := range doc {
		if strings.TrimSpace(k) == "" {
			return nil, &apperr.ImportError{Err: errors.New("empty settings key")}
		}
		if !knownKey(k) {
			s.log.Warn("importing unknown settings key", logx.String("key", k))
		}
	}
	if err := s.kv.Set(ctx, doc); err != nil {
		return nil, err
	}
	keys := sortedKeys(doc)
	s.log.Info("settings imported", logx.Int("keys", len(keys)))
	return keys, nil
}

func (s *Store) load(ctx context.Context, key string, dst any) (bool, error) {
	cur, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := cur[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, apperr.Configf(key, "decode: %v", err)
	}
	return true, nil
}

// decodeDoc decodes an aggregate generically; a non-object value is treated
// like a missing one.
func decodeDoc(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func nullIfMissing(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func knownKey(k string) bool {
	switch k {
	case KeyPushServices, KeyPushSettings, KeySyncConfig:
		return true
	}
	return false
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinKeys(m map[string]json.RawMessage) string {
	var buf bytes.Buffer
	for i, k := range sortedKeys(m) {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(k)
	}
	return buf.String()
}
