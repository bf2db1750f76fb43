package cloudsync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "anypush/pkg/logx"
)

// ScheduleConfig drives the periodic upload in serve mode.
type ScheduleConfig struct {
	// Spec is a 5-field cron expression or a descriptor such as "@every 6h".
	// Empty disables the schedule.
	Spec     string
	Timezone string
	Timeout  time.Duration
}

// Schedule runs a job on a cron spec. Overlapping runs are skipped.
type Schedule struct {
	log    logx.Logger
	job    func(ctx context.Context) error
	parser cron.Parser

	mu  sync.Mutex
	cfg ScheduleConfig
	c   *cron.Cron
	ctx context.Context
}

func NewSchedule(cfg ScheduleConfig, job func(ctx context.Context) error, log logx.Logger) *Schedule {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Schedule{
		log:    log.With(logx.String("comp", "sync-schedule")),
		job:    job,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:    cfg,
	}
}

// Validate checks a spec without scheduling it.
func (s *Schedule) Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := s.parser.Parse(spec)
	return err
}

// Start begins scheduling; jobs run with ctx as parent.
func (s *Schedule) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.startLocked()
}

// Apply replaces the configuration, restarting the cron if it is running.
func (s *Schedule) Apply(cfg ScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg {
		return nil
	}
	s.cfg = cfg
	if s.ctx == nil {
		return nil
	}
	s.stopLocked()
	return s.startLocked()
}

func (s *Schedule) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.ctx = nil
}

func (s *Schedule) startLocked() error {
	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		return nil
	}
	loc := s.location()
	clog := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	parent, timeout := s.ctx, s.cfg.Timeout
	if _, err := c.AddFunc(spec, func() { s.run(parent, timeout) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("sync schedule started", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Schedule) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("sync schedule stopped")
}

func (s *Schedule) run(parent context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Warn("scheduled sync failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("scheduled sync done", logx.Duration("took", time.Since(start)))
}

func (s *Schedule) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logx.Any(k, kv[i+1]))
	}
	return fields
}
