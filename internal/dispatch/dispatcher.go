package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"anypush/internal/apperr"
	"anypush/internal/content"
	"anypush/internal/eventbus"
	"anypush/internal/settings"
	logx "anypush/pkg/logx"
)

var (
	ErrNotConfigured     = errors.New("push services not configured")
	ErrNoServicesEnabled = errors.New("no push services enabled")
	ErrUnknownService    = errors.New("unknown push service")
)

// TestMessage is sent by Test.
const TestMessage = "This is a test message 🚀\n\nSource: AnyPush test"

const DefaultTimeout = 10 * time.Second

// ConfigProvider supplies the settings a dispatch needs. Services returns nil
// when pushServices has never been stored.
type ConfigProvider interface {
	Services(ctx context.Context) (map[string]json.RawMessage, error)
	PushSettings(ctx context.Context) (*settings.PushSettings, error)
}

// Config is the dispatcher's runtime configuration.
type Config struct {
	// Timeout bounds each channel's request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Outcome is the settled result of one channel.
type Outcome struct {
	Service  string
	Name     string
	Duration time.Duration
	Err      error
}

type Result struct {
	ID           string
	SuccessCount int
	FailureCount int
	Outcomes     []Outcome
}

type Dispatcher struct {
	provider ConfigProvider
	registry *Registry
	client   *http.Client
	bus      *eventbus.Bus
	log      logx.Logger

	mu  sync.RWMutex
	cfg Config
}

// New returns a dispatcher. A nil client uses a fresh http.Client; bus may be nil.
func New(provider ConfigProvider, registry *Registry, client *http.Client, bus *eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		provider: provider,
		registry: registry,
		client:   client,
		bus:      bus,
		log:      log.With(logx.String("comp", "dispatch")),
		cfg:      Config{Timeout: DefaultTimeout},
	}
}

// Apply swaps the runtime configuration; in-flight dispatches keep the old one.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

func (d *Dispatcher) timeout() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.Timeout
}

type job struct {
	key  string
	name string
	ch   Channel
	err  error
}

// Dispatch formats item once and sends it to every enabled service. The
// returned error is ErrNotConfigured, ErrNoServicesEnabled or a provider
// failure; per-service failures are only reported through Result.
func (d *Dispatcher) Dispatch(ctx context.Context, item content.Item) (Result, error) {
	res := Result{ID: uuid.NewString()}
	log := d.log.With(logx.String("dispatch_id", res.ID), logx.String("kind", string(item.Kind)))

	services, err := d.provider.Services(ctx)
	if err != nil {
		return res, fmt.Errorf("load push services: %w", err)
	}
	if services == nil {
		return res, ErrNotConfigured
	}
	ps, err := d.provider.PushSettings(ctx)
	switch {
	case apperr.IsConfig(err):
		// Undecodable settings format like absent ones.
		log.Warn("push settings unreadable, using defaults", logx.Err(err))
		ps = nil
	case err != nil:
		return res, fmt.Errorf("load push settings: %w", err)
	}

	formatted := content.Format(item, ps)
	jobs := d.plan(services, log)
	if len(jobs) == 0 {
		log.Info("no push services enabled")
		return res, ErrNoServicesEnabled
	}

	res.Outcomes = d.run(ctx, jobs, formatted)
	for _, o := range res.Outcomes {
		if o.Err == nil {
			res.SuccessCount++
			continue
		}
		log.Warn("push failed", logx.String("service", o.Service), logx.Err(o.Err))
	}
	res.FailureCount = len(res.Outcomes) - res.SuccessCount

	log.Info("push dispatched",
		logx.Int("success", res.SuccessCount),
		logx.Int("failure", res.FailureCount),
	)
	d.bus.Publish(eventbus.Event{Type: eventbus.TypePushDone, ID: res.ID, Data: res})
	return res, nil
}

// Test sends TestMessage to the single service key, whether or not it is
// enabled.
func (d *Dispatcher) Test(ctx context.Context, key string) (Outcome, error) {
	services, err := d.provider.Services(ctx)
	if err != nil {
		return Outcome{Service: key}, fmt.Errorf("load push services: %w", err)
	}
	raw, ok := services[key]
	if !ok {
		return Outcome{Service: key}, ErrNotConfigured
	}

	j := job{key: key, name: serviceName(raw, key)}
	j.ch, j.err = d.registry.build(key, raw, d.client)
	if errors.Is(j.err, ErrUnknownService) {
		return Outcome{Service: key, Name: j.name}, j.err
	}

	out := d.run(ctx, []job{j}, content.Formatted{Content: TestMessage, PureContent: true})[0]
	if out.Err != nil {
		d.log.Warn("test push failed", logx.String("service", key), logx.Err(out.Err))
	} else {
		d.log.Info("test push sent", logx.String("service", key))
	}
	return out, nil
}

// plan selects the enabled services and builds their channels. Build errors
// are kept on the job so they count as that service's failure.
func (d *Dispatcher) plan(services map[string]json.RawMessage, log logx.Logger) []job {
	keys := make([]string, 0, len(services))
	for k := range services {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var jobs []job
	for _, key := range keys {
		raw := services[key]
		var hdr settings.ServiceHeader
		if err := json.Unmarshal(raw, &hdr); err != nil || !hdr.Enabled {
			continue
		}
		j := job{key: key, name: serviceName(raw, key)}
		j.ch, j.err = d.registry.build(key, raw, d.client)
		if errors.Is(j.err, ErrUnknownService) {
			log.Warn("skipping unknown push service", logx.String("service", key))
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs
}

func (d *Dispatcher) run(ctx context.Context, jobs []job, f content.Formatted) []Outcome {
	timeout := d.timeout()
	out := make([]Outcome, len(jobs))

	var wg sync.WaitGroup
	for i, j := range jobs {
		out[i] = Outcome{Service: j.key, Name: j.name}
		if j.err != nil {
			out[i].Err = j.err
			continue
		}
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := ch.Send(cctx, f)
			out[i].Duration = time.Since(start)
			out[i].Err = err
		}(i, j.ch)
	}
	wg.Wait()
	return out
}

func serviceName(raw json.RawMessage, fallback string) string {
	var hdr settings.ServiceHeader
	if err := json.Unmarshal(raw, &hdr); err == nil && hdr.Name != "" {
		return hdr.Name
	}
	return fallback
}
