package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseJSONAndYAML(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "anypush.json", `{"storage":{"driver":"sqlite","path":"./a.db"},"dispatch":{"timeout":"3s"},"http":{"enabled":true,"cors_origins":["chrome-extension://abc"]}}`},
		{"yaml", "anypush.yaml", "storage:\n  driver: sqlite\n  path: ./a.db\ndispatch:\n  timeout: 3s\nhttp:\n  enabled: true\n  cors_origins:\n    - chrome-extension://abc\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(writeFile(t, tc.file, tc.body))
			cfg, found, err := m.Load()
			if err != nil || !found {
				t.Fatalf("Load: %v found=%v", err, found)
			}
			if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./a.db" {
				t.Fatalf("storage = %+v", cfg.Storage)
			}
			if cfg.Dispatch.Timeout != "3s" || !cfg.HTTP.Enabled || len(cfg.HTTP.CORSOrigins) != 1 {
				t.Fatalf("cfg = %+v", cfg)
			}
			// Fields absent from the file keep their defaults.
			if !cfg.Logging.Console || cfg.Logging.Level != "info" {
				t.Fatalf("logging defaults lost: %+v", cfg.Logging)
			}
			if m.Get() != cfg {
				t.Fatalf("Load did not commit")
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"unknown field", "c.json", `{"storage":{"driver":"file","path":"x","bogus":1}}`, "unknown field"},
		{"unknown yaml field", "c.yml", "pprof:\n  enabled: true\n", "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"bad duration", "c.json", `{"dispatch":{"timeout":"soon"}}`, "dispatch.timeout"},
		{"unknown driver", "c.json", `{"storage":{"driver":"mongo"}}`, "unknown driver"},
		{"telegram without owners", "c.json", `{"telegram":{"token":"t"}}`, "owner_user_ids"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewManager(writeFile(t, tc.file, tc.body)).Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.json"))
	cfg, found, err := m.Load()
	if err != nil || found {
		t.Fatalf("Load = %v found=%v", err, found)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path == "" {
		t.Fatalf("default storage = %+v", cfg.Storage)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 10 * time.Second, false},
		{"0s", 10 * time.Second, false},
		{" 250ms ", 250 * time.Millisecond, false},
		{"-1s", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationOrDefault("x", tc.raw, 10*time.Second)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseDurationOrDefault(%q) = %v, %v", tc.raw, got, err)
		}
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a := Default()
	b := Default()
	b.HTTP.Token = "super-secret"
	b.Dispatch.Timeout = "5s"

	changed, fields := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "dispatch,http" {
		t.Fatalf("changed = %v", changed)
	}
	if len(fields) == 0 {
		t.Fatalf("no fields")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "http" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	p := writeFile(t, "anypush.json", `{"dispatch":{"timeout":"1s"}}`)
	m := NewManager(p)
	if _, _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"dispatch":{"timeout":"2s"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Dispatch.Timeout != "2s" {
			t.Fatalf("reloaded timeout = %q", cfg.Dispatch.Timeout)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
}
