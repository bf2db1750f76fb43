package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"anypush/internal/content"
	"anypush/internal/eventbus"
	"anypush/internal/settings"
	"anypush/internal/storage"
	logx "anypush/pkg/logx"
)

type staticProvider struct {
	services map[string]json.RawMessage
	push     *settings.PushSettings
	err      error
}

func (p staticProvider) Services(context.Context) (map[string]json.RawMessage, error) {
	return p.services, p.err
}

func (p staticProvider) PushSettings(context.Context) (*settings.PushSettings, error) {
	return p.push, nil
}

type fakeChannel struct {
	calls *atomic.Int32
	err   error
	delay time.Duration
	got   chan content.Formatted
}

func (c fakeChannel) Send(ctx context.Context, f content.Formatted) error {
	c.calls.Add(1)
	if c.got != nil {
		c.got <- f
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func registryWith(calls *atomic.Int32, errs map[string]error) *Registry {
	r := NewRegistry()
	for key, err := range errs {
		err := err
		r.Register(key, func(json.RawMessage, *http.Client) (Channel, error) {
			return fakeChannel{calls: calls, err: err}, nil
		})
	}
	return r
}

func TestDispatchNotConfigured(t *testing.T) {
	var calls atomic.Int32
	d := New(staticProvider{}, registryWith(&calls, nil), nil, nil, logx.Nop())
	_, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "x"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestDispatchNoneEnabled(t *testing.T) {
	var calls atomic.Int32
	p := staticProvider{services: map[string]json.RawMessage{
		"wechat": json.RawMessage(`{"name":"WeCom","enabled":false}`),
		"bark":   json.RawMessage(`{"name":"Bark","enabled":false}`),
	}}
	d := New(p, registryWith(&calls, map[string]error{"wechat": nil, "bark": nil}), nil, nil, logx.Nop())

	res, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "x"})
	if !errors.Is(err, ErrNoServicesEnabled) {
		t.Fatalf("err = %v, want ErrNoServicesEnabled", err)
	}
	if res.SuccessCount != 0 || res.FailureCount != 0 {
		t.Fatalf("counts = %d/%d", res.SuccessCount, res.FailureCount)
	}
	if calls.Load() != 0 {
		t.Fatalf("channels called %d times", calls.Load())
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	var calls atomic.Int32
	p := staticProvider{services: map[string]json.RawMessage{
		"wechat": json.RawMessage(`{"name":"WeCom","enabled":true}`),
		"bark":   json.RawMessage(`{"name":"Bark","enabled":true}`),
	}}
	reg := registryWith(&calls, map[string]error{
		"wechat": errors.New("HTTP 500"),
		"bark":   nil,
	})
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1)
	defer unsub()

	d := New(p, reg, nil, bus, logx.Nop())
	res, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "x"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.SuccessCount != 1 || res.FailureCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", res.SuccessCount, res.FailureCount)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if res.ID == "" {
		t.Fatalf("missing dispatch id")
	}
	if e := <-events; e.Type != eventbus.TypePushDone || e.ID != res.ID {
		t.Fatalf("event = %+v", e)
	}
}

func TestDispatchBuilderErrorCountsAsFailure(t *testing.T) {
	var calls atomic.Int32
	p := staticProvider{services: map[string]json.RawMessage{
		"bark":    json.RawMessage(`{"name":"Bark","enabled":true}`),
		"wechat":  json.RawMessage(`{"name":"WeCom","enabled":true}`),
		"mystery": json.RawMessage(`{"name":"?","enabled":true}`),
	}}
	reg := registryWith(&calls, map[string]error{"wechat": nil})
	reg.Register("bark", func(json.RawMessage, *http.Client) (Channel, error) {
		return nil, errors.New("cannot extract device key")
	})

	d := New(p, reg, nil, nil, logx.Nop())
	res, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "x"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.SuccessCount != 1 || res.FailureCount != 1 || len(res.Outcomes) != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchFormatsOnceForAllChannels(t *testing.T) {
	got := make(chan content.Formatted, 2)
	var calls atomic.Int32
	reg := NewRegistry()
	for _, key := range []string{"a", "b"} {
		reg.Register(key, func(json.RawMessage, *http.Client) (Channel, error) {
			return fakeChannel{calls: &calls, got: got}, nil
		})
	}
	p := staticProvider{
		services: map[string]json.RawMessage{
			"a": json.RawMessage(`{"enabled":true}`),
			"b": json.RawMessage(`{"enabled":true}`),
		},
		push: &settings.PushSettings{TextTemplate: "[{text}]"},
	}
	d := New(p, reg, nil, nil, logx.Nop())
	if _, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "hi"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for i := 0; i < 2; i++ {
		if f := <-got; f.Content != "[hi]" {
			t.Fatalf("channel %d got %q", i, f.Content)
		}
	}
}

func TestDispatchPerChannelTimeout(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	reg.Register("slow", func(json.RawMessage, *http.Client) (Channel, error) {
		return fakeChannel{calls: &calls, delay: time.Second}, nil
	})
	reg.Register("fast", func(json.RawMessage, *http.Client) (Channel, error) {
		return fakeChannel{calls: &calls}, nil
	})
	p := staticProvider{services: map[string]json.RawMessage{
		"slow": json.RawMessage(`{"enabled":true}`),
		"fast": json.RawMessage(`{"enabled":true}`),
	}}
	d := New(p, reg, nil, nil, logx.Nop())
	d.Apply(Config{Timeout: 20 * time.Millisecond})

	res, err := d.Dispatch(context.Background(), content.Item{Kind: content.KindText, Content: "x"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.SuccessCount != 1 || res.FailureCount != 1 {
		t.Fatalf("counts = %d/%d", res.SuccessCount, res.FailureCount)
	}
	for _, o := range res.Outcomes {
		if o.Service == "slow" && !errors.Is(o.Err, context.DeadlineExceeded) {
			t.Fatalf("slow err = %v", o.Err)
		}
	}
}

func TestTestIgnoresEnabledFlag(t *testing.T) {
	got := make(chan content.Formatted, 1)
	var calls atomic.Int32
	reg := NewRegistry()
	reg.Register("bark", func(json.RawMessage, *http.Client) (Channel, error) {
		return fakeChannel{calls: &calls, got: got}, nil
	})
	p := staticProvider{services: map[string]json.RawMessage{
		"bark": json.RawMessage(`{"name":"Bark","enabled":false}`),
	}}
	d := New(p, reg, nil, nil, logx.Nop())

	out, err := d.Test(context.Background(), "bark")
	if err != nil || out.Err != nil {
		t.Fatalf("Test: %v / %v", err, out.Err)
	}
	if out.Name != "Bark" {
		t.Fatalf("name = %q", out.Name)
	}
	if f := <-got; f.Content != TestMessage {
		t.Fatalf("content = %q", f.Content)
	}

	if _, err := d.Test(context.Background(), "wechat"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("missing service err = %v", err)
	}
}

func TestDispatchUnreadablePushSettingsStillSends(t *testing.T) {
	ctx := context.Background()
	st := settings.New(storage.NewMemory(), logx.Nop())
	if _, err := st.Import(ctx, []byte(`{
		"pushServices": {"wechat": {"name": "WeCom", "enabled": true, "webhook": "https://hook.example"}},
		"pushSettings": {"includeSource": "no"}
	}`)); err != nil {
		t.Fatalf("import: %v", err)
	}

	var calls atomic.Int32
	got := make(chan content.Formatted, 1)
	r := NewRegistry()
	r.Register("wechat", func(json.RawMessage, *http.Client) (Channel, error) {
		return fakeChannel{calls: &calls, got: got}, nil
	})

	d := New(st, r, nil, nil, logx.Nop())
	item := content.Item{Kind: content.KindText, Content: "hi", Source: content.Source{URL: "https://e.com", Title: "E"}}
	res, err := d.Dispatch(ctx, item)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.SuccessCount != 1 || calls.Load() != 1 {
		t.Fatalf("success=%d calls=%d", res.SuccessCount, calls.Load())
	}
	if f := <-got; f.Content != content.Format(item, nil).Content {
		t.Fatalf("content=%q, want default formatting", f.Content)
	}
}
