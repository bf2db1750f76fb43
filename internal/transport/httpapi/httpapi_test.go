package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anypush/internal/content"
	"anypush/internal/notice"
	"anypush/internal/settings"
	"anypush/internal/storage"
	logx "anypush/pkg/logx"
)

type fakeBackend struct {
	store  *settings.Store
	pushed []content.Item
	tested []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	st := settings.New(storage.NewMemory(), logx.Nop())
	if err := st.InitializeDefaults(context.Background()); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	return &fakeBackend{store: st}
}

func (f *fakeBackend) Push(_ context.Context, item content.Item) notice.Report {
	f.pushed = append(f.pushed, item)
	return notice.Report{Success: 1, Notices: []notice.Notice{notice.Succeeded(1)}}
}

func (f *fakeBackend) Test(_ context.Context, svc string) notice.Report {
	f.tested = append(f.tested, svc)
	return notice.Report{Success: 1}
}

func (f *fakeBackend) Settings(ctx context.Context) (settings.Bundle, error) {
	return f.store.Bundle(ctx)
}

func (f *fakeBackend) SaveSettings(ctx context.Context, b settings.Bundle) (settings.Bundle, error) {
	return f.store.Save(ctx, b)
}

func (f *fakeBackend) ExportSettings(ctx context.Context) ([]byte, error) {
	return f.store.Export(ctx)
}

func (f *fakeBackend) ImportSettings(ctx context.Context, data []byte) ([]string, error) {
	return f.store.Import(ctx, data)
}

func (f *fakeBackend) ResetSettings(ctx context.Context) error {
	if err := f.store.Clear(ctx); err != nil {
		return err
	}
	return f.store.InitializeDefaults(ctx)
}

func (f *fakeBackend) Notices() []notice.Notice {
	return []notice.Notice{notice.NotConfigured()}
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPushRoutes(t *testing.T) {
	b := newFakeBackend(t)
	srv := New(Config{}, b, nil, logx.Nop())

	rec := do(t, srv.Handler(), http.MethodPost, "/api/push/text",
		`{"content":"hello","source":{"url":"https://e.com","title":"E"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("push text status=%d body=%s", rec.Code, rec.Body.String())
	}
	var rep notice.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Success != 1 {
		t.Fatalf("success=%d", rep.Success)
	}

	rec = do(t, srv.Handler(), http.MethodPost, "/api/push/url",
		`{"source":{"url":"https://e.com/a","title":"A"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("push url status=%d", rec.Code)
	}

	if len(b.pushed) != 2 {
		t.Fatalf("pushed=%d", len(b.pushed))
	}
	if b.pushed[0].Kind != content.KindText || b.pushed[0].Content != "hello" {
		t.Fatalf("first item=%+v", b.pushed[0])
	}
	if b.pushed[1].Kind != content.KindURL || b.pushed[1].Content != "https://e.com/a" {
		t.Fatalf("second item=%+v", b.pushed[1])
	}
}

func TestPushRejectsBadBodies(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{}, b, nil, logx.Nop()).Handler()

	tests := []struct {
		name string
		path string
		body string
	}{
		{"empty body", "/api/push/text", ""},
		{"invalid json", "/api/push/text", "{"},
		{"blank content", "/api/push/text", `{"content":"  "}`},
		{"url without content or source", "/api/push/url", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
	if len(b.pushed) != 0 {
		t.Fatalf("nothing should be pushed, got %d", len(b.pushed))
	}
}

func TestPushKeepsContentAsSent(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{}, b, nil, logx.Nop()).Handler()

	rec := do(t, h, http.MethodPost, "/api/push/text", `{"content":"  indented code\n"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(b.pushed) != 1 || b.pushed[0].Content != "  indented code\n" {
		t.Fatalf("pushed=%+v", b.pushed)
	}
}

func TestTestRoute(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{}, b, nil, logx.Nop()).Handler()

	rec := do(t, h, http.MethodPost, "/api/test/bark", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if len(b.tested) != 1 || b.tested[0] != "bark" {
		t.Fatalf("tested=%v", b.tested)
	}
}

func TestSettingsRoutes(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{}, b, nil, logx.Nop()).Handler()

	rec := do(t, h, http.MethodGet, "/api/settings", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}
	var got settings.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if got.PushSettings.TextTemplate != settings.DefaultTextTemplate {
		t.Fatalf("text template=%q", got.PushSettings.TextTemplate)
	}

	// enabled wechat without webhook fails validation
	bad := `{"pushServices":{"wechat":{"name":"WeCom","enabled":true,"webhook":""}},"pushSettings":{},"syncConfig":{"type":"none","webdav":null}}`
	rec = do(t, h, http.MethodPut, "/api/settings", bad, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("put invalid status=%d body=%s", rec.Code, rec.Body.String())
	}
	var eb errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &eb)
	if eb.Field != "pushServices.wechat.webhook" {
		t.Fatalf("field=%q", eb.Field)
	}

	good := `{"pushServices":{"wechat":{"name":"WeCom","enabled":true,"webhook":" https://qyapi.example/hook "}},"pushSettings":{},"syncConfig":{"type":"none","webdav":null}}`
	rec = do(t, h, http.MethodPut, "/api/settings", good, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status=%d body=%s", rec.Code, rec.Body.String())
	}
	ps, err := b.store.PushServices(context.Background())
	if err != nil || ps == nil || ps.Wechat == nil {
		t.Fatalf("stored services=%+v err=%v", ps, err)
	}
	if ps.Wechat.Webhook != "https://qyapi.example/hook" {
		t.Fatalf("webhook=%q", ps.Wechat.Webhook)
	}
}

func TestExportImportReset(t *testing.T) {
	b := newFakeBackend(t)
	srv := New(Config{}, b, nil, logx.Nop())
	srv.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/settings/export", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status=%d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "anypush-config-2024-03-09.json") {
		t.Fatalf("content-disposition=%q", cd)
	}

	rec = do(t, h, http.MethodPost, "/api/settings/import", "{not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad import status=%d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/settings/import", `{"custom":{"a":1}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rec.Code, rec.Body.String())
	}
	all, _ := b.store.Get(context.Background(), "custom")
	if _, ok := all["custom"]; !ok {
		t.Fatalf("imported key missing")
	}

	rec = do(t, h, http.MethodPost, "/api/settings/reset", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status=%d", rec.Code)
	}
	all, _ = b.store.Get(context.Background(), "custom")
	if _, ok := all["custom"]; ok {
		t.Fatalf("reset should clear custom keys")
	}
}

func TestTokenAuth(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{Token: "s3cret"}, b, nil, logx.Nop()).Handler()

	tests := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": "s3cret"}, http.StatusUnauthorized},
		{"ok", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/notices", "", tt.hdr)
			if rec.Code != tt.want {
				t.Fatalf("status=%d want %d", rec.Code, tt.want)
			}
		})
	}

	// healthz stays open
	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	b := newFakeBackend(t)
	h := New(Config{CORSOrigins: []string{"chrome-extension://abc"}}, b, nil, logx.Nop()).Handler()

	rec := do(t, h, http.MethodOptions, "/api/push/text", "", map[string]string{
		"Origin":                        "chrome-extension://abc",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Fatalf("allow-origin=%q", got)
	}

	rec = do(t, h, http.MethodOptions, "/api/push/text", "", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin=%q", got)
	}
}
