package settings

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"anypush/internal/apperr"
	"anypush/internal/storage"
	logx "anypush/pkg/logx"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	kv := storage.NewMemory()
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, logx.Nop()), kv
}

func TestMergeDefaultsExistingWins(t *testing.T) {
	existing := map[string]any{
		"wechat": map[string]any{"enabled": true},
	}
	defaults := map[string]any{
		"wechat": map[string]any{"enabled": false, "webhook": ""},
		"bark":   map[string]any{"name": "Bark", "group": "AnyPush"},
	}

	got := MergeDefaults(existing, defaults)

	wechat := got["wechat"].(map[string]any)
	if wechat["enabled"] != true {
		t.Fatalf("wechat.enabled = %v, want true", wechat["enabled"])
	}
	if wechat["webhook"] != "" {
		t.Fatalf("wechat.webhook = %v, want empty string", wechat["webhook"])
	}
	if !reflect.DeepEqual(got["bark"], defaults["bark"]) {
		t.Fatalf("bark = %v, want defaults %v", got["bark"], defaults["bark"])
	}
}

func TestMergeDefaultsNilExisting(t *testing.T) {
	defaults := map[string]any{"a": 1.0}
	if got := MergeDefaults(nil, defaults); !reflect.DeepEqual(got, defaults) {
		t.Fatalf("got %v", got)
	}
}

func TestMergeDefaultsKeepsExtraKeys(t *testing.T) {
	existing := map[string]any{"custom": map[string]any{"name": "x"}}
	got := MergeDefaults(existing, map[string]any{"bark": map[string]any{}})
	if _, ok := got["custom"]; !ok {
		t.Fatalf("extra key dropped: %v", got)
	}
}

func TestMergeDefaultsKeepsExplicitNull(t *testing.T) {
	existing := map[string]any{
		"wechat": map[string]any{"name": "WeCom", "webhook": nil},
		"bark":   nil,
	}
	defaults := map[string]any{
		"wechat": map[string]any{"name": "WeCom", "webhook": ""},
		"bark":   map[string]any{"name": "Bark"},
	}

	got := MergeDefaults(existing, defaults)

	if v, ok := got["bark"]; !ok || v != nil {
		t.Fatalf("bark = %v (present=%v), want null kept", v, ok)
	}
	wechat := got["wechat"].(map[string]any)
	if v, ok := wechat["webhook"]; !ok || v != nil {
		t.Fatalf("wechat.webhook = %v (present=%v), want null kept", v, ok)
	}
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name string
		svc  map[string]any
		want bool
	}{
		{"nil", nil, false},
		{"missing bark", map[string]any{"wechat": map[string]any{"name": "WeCom"}}, false},
		{"name not string", map[string]any{
			"wechat": map[string]any{"name": 1.0},
			"bark":   map[string]any{"name": "Bark"},
		}, false},
		{"complete", map[string]any{
			"wechat": map[string]any{"name": "WeCom"},
			"bark":   map[string]any{"name": "Bark"},
		}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := servicesComplete(tc.svc); got != tc.want {
				t.Fatalf("servicesComplete = %v, want %v", got, tc.want)
			}
		})
	}

	if pushSettingsComplete(map[string]any{"textTemplate": "a", "urlTemplate": "b"}) {
		t.Fatalf("missing includeSource should be incomplete")
	}
	if pushSettingsComplete(map[string]any{"textTemplate": "", "urlTemplate": "b", "includeSource": true}) {
		t.Fatalf("empty textTemplate should be incomplete")
	}
	if !pushSettingsComplete(map[string]any{"textTemplate": "a", "urlTemplate": "b", "includeSource": false}) {
		t.Fatalf("expected complete")
	}
}

func TestInitializeDefaultsFirstRun(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}

	svc, err := s.PushServices(ctx)
	if err != nil || svc == nil {
		t.Fatalf("PushServices: %v %v", svc, err)
	}
	if svc.Wechat == nil || svc.Wechat.Name != "WeCom" || svc.Wechat.Enabled {
		t.Fatalf("wechat defaults wrong: %+v", svc.Wechat)
	}
	if svc.Bark == nil || svc.Bark.Group != "AnyPush" || svc.Bark.Volume != 5 || !svc.Bark.Archive() {
		t.Fatalf("bark defaults wrong: %+v", svc.Bark)
	}

	ps, err := s.PushSettings(ctx)
	if err != nil || ps == nil {
		t.Fatalf("PushSettings: %v %v", ps, err)
	}
	if !ps.IncludesSource() || ps.TextTemplate != DefaultTextTemplate || ps.URLTemplate != DefaultURLTemplate {
		t.Fatalf("push settings defaults wrong: %+v", ps)
	}

	sc, err := s.SyncConfig(ctx)
	if err != nil || sc == nil {
		t.Fatalf("SyncConfig: %v %v", sc, err)
	}
	if sc.Type != SyncNone || sc.WebDAV != nil {
		t.Fatalf("sync defaults wrong: %+v", sc)
	}
}

func TestInitializeDefaultsPreservesExisting(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	err := kv.Set(ctx, map[string]json.RawMessage{
		KeyPushServices: json.RawMessage(`{"wechat":{"enabled":true,"webhook":"https://hook"}}`),
		KeySyncConfig:   json.RawMessage(`{"type":"webdav","webdav":{"url":"https://dav/","username":"u","password":"p"}}`),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}

	svc, _ := s.PushServices(ctx)
	if !svc.Wechat.Enabled || svc.Wechat.Webhook != "https://hook" {
		t.Fatalf("existing wechat overwritten: %+v", svc.Wechat)
	}
	if svc.Wechat.Name != "WeCom" {
		t.Fatalf("wechat name not filled: %q", svc.Wechat.Name)
	}
	if svc.Bark == nil || svc.Bark.Name != "Bark" {
		t.Fatalf("bark not filled: %+v", svc.Bark)
	}

	sc, _ := s.SyncConfig(ctx)
	if sc.Type != SyncWebDAV || sc.WebDAV == nil || sc.WebDAV.Username != "u" {
		t.Fatalf("existing sync config replaced: %+v", sc)
	}
}

func TestInitializeDefaultsCompleteIsUntouched(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	raw := json.RawMessage(`{"includeSource":false,"textTemplate":"T {text}","urlTemplate":"U {url}"}`)
	if err := kv.Set(ctx, map[string]json.RawMessage{KeyPushSettings: raw}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	got, _ := kv.Get(ctx, KeyPushSettings)
	if string(got[KeyPushSettings]) != string(raw) {
		t.Fatalf("complete pushSettings rewritten: %s", got[KeyPushSettings])
	}
}

func TestSaveValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(b *Bundle)
		field string
	}{
		{"wechat without webhook", func(b *Bundle) { b.PushServices.Wechat.Enabled = true }, "pushServices.wechat.webhook"},
		{"bark without url", func(b *Bundle) { b.PushServices.Bark.Enabled = true }, "pushServices.bark.url"},
		{"webdav without config", func(b *Bundle) { b.SyncConfig.Type = SyncWebDAV }, "syncConfig.webdav"},
		{"webdav without password", func(b *Bundle) {
			b.SyncConfig = SyncConfig{Type: SyncWebDAV, WebDAV: &WebDAVConfig{URL: "https://dav/", Username: "u"}}
		}, "syncConfig.webdav"},
		{"unknown sync type", func(b *Bundle) { b.SyncConfig.Type = "ftp" }, "syncConfig.type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, kv := newTestStore(t)
			b := Bundle{PushServices: DefaultPushServices(), PushSettings: DefaultPushSettings(), SyncConfig: DefaultSyncConfig()}
			tc.mut(&b)

			_, err := s.Save(context.Background(), b)
			var ce *apperr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Fatalf("field = %q, want %q", ce.Field, tc.field)
			}
			all, _ := kv.Get(context.Background())
			if len(all) != 0 {
				t.Fatalf("invalid save wrote %d keys", len(all))
			}
		})
	}
}

func TestSaveNormalizes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	b := Bundle{PushServices: DefaultPushServices(), SyncConfig: DefaultSyncConfig()}
	b.PushServices.Bark.Enabled = true
	b.PushServices.Bark.URL = "  https://api.day.app/key/ "
	b.PushServices.Bark.Group = " "
	b.PushSettings.IncludeSource = BoolPtr(false)

	saved, err := s.Save(ctx, b)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.PushServices.Bark.URL != "https://api.day.app/key/" {
		t.Fatalf("url not trimmed: %q", saved.PushServices.Bark.URL)
	}
	if saved.PushServices.Bark.Group != DefaultBarkGroup {
		t.Fatalf("group = %q", saved.PushServices.Bark.Group)
	}

	ps, _ := s.PushSettings(ctx)
	if ps.TextTemplate != DefaultTextTemplate || ps.URLTemplate != DefaultURLTemplate {
		t.Fatalf("blank templates not defaulted: %+v", ps)
	}
	if ps.IncludesSource() {
		t.Fatalf("includeSource=false lost")
	}
	// The input bundle must not be mutated through shared pointers.
	if b.PushServices.Bark.Group != " " {
		t.Fatalf("Save mutated caller bundle")
	}
}

func TestImportAtomicOnMalformed(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()
	if err := s.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	before, _ := s.Export(ctx)

	for _, in := range []string{`{"pushSettings": `, `[1,2]`, `null`, `{"a":1} {"b":2}`} {
		_, err := s.Import(ctx, []byte(in))
		if !apperr.IsImport(err) {
			t.Fatalf("Import(%q) err = %v, want ImportError", in, err)
		}
	}

	after, _ := s.Export(ctx)
	if string(before) != string(after) {
		t.Fatalf("store changed after failed import")
	}
	_ = kv
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestStore(t)
	ctx := context.Background()
	if err := src.InitializeDefaults(ctx); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	data, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, _ := newTestStore(t)
	keys, err := dst.Import(ctx, append(data, '\n'))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{KeyPushServices, KeyPushSettings, KeySyncConfig}) {
		t.Fatalf("keys = %v", keys)
	}
	again, _ := dst.Export(ctx)
	if string(again) != string(data) {
		t.Fatalf("round trip mismatch:\n%s\n---\n%s", data, again)
	}
}

func TestImportAcceptsUnknownKeys(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Import(ctx, []byte(`{"legacy":{"x":1}}`)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, _ := kv.Get(ctx, "legacy")
	if string(got["legacy"]) != `{"x":1}` {
		t.Fatalf("legacy = %s", got["legacy"])
	}
}

func TestServicesAbsent(t *testing.T) {
	s, _ := newTestStore(t)
	svc, err := s.Services(context.Background())
	if err != nil || svc != nil {
		t.Fatalf("Services on empty store = %v, %v", svc, err)
	}
}

func TestSyncPayload(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.InitializeDefaults(ctx)

	b, err := s.SyncPayload(ctx)
	if err != nil {
		t.Fatalf("SyncPayload: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if _, ok := doc[KeySyncConfig]; ok {
		t.Fatalf("payload must not carry syncConfig")
	}
	if len(doc) != 2 {
		t.Fatalf("payload keys = %d", len(doc))
	}
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	if got := ExportFileName(ts); got != "anypush-config-2024-03-07.json" {
		t.Fatalf("ExportFileName = %q", got)
	}
}

func TestNormalizeBarkVolumeDefault(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero gets default", 0, DefaultBarkVolume},
		{"explicit kept", 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bundle{PushServices: PushServices{Bark: &BarkConfig{
				Name: "Bark", Enabled: true, URL: "https://api.day.app/key", Level: "critical", Volume: tt.in,
			}}}
			got := b.Normalize().PushServices.Bark.Volume
			if got != tt.want {
				t.Fatalf("volume = %d, want %d", got, tt.want)
			}
		})
	}
}
