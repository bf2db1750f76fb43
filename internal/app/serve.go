package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"anypush/internal/cloudsync"
	"anypush/internal/config"
	"anypush/internal/eventbus"
	"anypush/internal/notice"
	"anypush/internal/runtime/supervisor"
	"anypush/internal/transport"
	"anypush/internal/transport/httpapi"
	"anypush/internal/transport/telegram"
	logx "anypush/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

var loopRestart = supervisor.Restart{MinBackoff: time.Second, MaxBackoff: time.Minute}

// Serve runs the HTTP API, the Telegram bot, the config watcher and the sync
// schedule until ctx is done or one of them fails for good.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfgm.Get()
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	schedCfg, err := mapScheduleConfig(cfg)
	if err != nil {
		return err
	}
	sched := cloudsync.NewSchedule(schedCfg, a.scheduledSync, a.log)
	if err := sched.Validate(schedCfg.Spec); err != nil {
		return fmt.Errorf("sync.schedule: %w", err)
	}

	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if err := sched.Validate(c.Sync.Schedule); err != nil {
			return fmt.Errorf("sync.schedule: %w", err)
		}
		return nil
	})

	started := 0

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		tcfg, err := mapTelegramConfig(cfg, a.creds)
		if err != nil {
			return err
		}
		h := telegram.NewHandler(a, cfg.Telegram.OwnerUserIDs, a.log)
		ad, err := telegram.New(tcfg, h, a.log)
		if err != nil {
			return err
		}
		if tcfg.LogChatID != 0 {
			a.logs.SetSender(ad)
			a.notices.AddSink(chatSink{ad: ad, target: transport.ChatTarget{ChatID: tcfg.LogChatID}})
		}
		sup.GoRestart("telegram", loopRestart, ad.Run)
		started++
	}

	if cfg.HTTP.Enabled {
		hcfg, err := mapHTTPConfig(cfg, a.creds)
		if err != nil {
			return err
		}
		srv := httpapi.New(hcfg, a, sup.Status, a.log)
		sup.Go("http", srv.Run)
		started++
	}

	if err := sched.Start(sup.Context()); err != nil {
		sup.Stop(context.Background())
		return err
	}
	defer sched.Stop()
	if schedCfg.Spec != "" {
		started++
	}

	if _, err := os.Stat(a.cfgm.Path()); err == nil {
		sup.GoRestart("config.watch", loopRestart, a.cfgm.Watch)
		sub := a.cfgm.Subscribe(4)
		sup.Go("config.apply", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			return a.applyLoop(c, sub, sched)
		})
	}

	events, unsub := a.bus.Subscribe(64)
	sup.Go("events", func(c context.Context) error {
		defer unsub()
		return a.eventLoop(c, events)
	})

	if started == 0 {
		a.log.Warn("serve: nothing to run, enable http, telegram or sync.schedule")
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("serving", logx.Bool("http", cfg.HTTP.Enabled), logx.Bool("telegram", cfg.Telegram.Token != ""), logx.String("sync_schedule", schedCfg.Spec))

	<-sup.Context().Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) scheduledSync(ctx context.Context) error {
	sent, err := a.SyncPush(ctx)
	if err != nil {
		return err
	}
	if !sent {
		a.log.Debug("scheduled sync skipped, no remote target")
	}
	return nil
}

// applyLoop applies every committed config reload. Bursts are coalesced to
// the latest config.
func (a *App) applyLoop(ctx context.Context, sub chan *config.Config, sched *cloudsync.Schedule) error {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next, sched)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config, sched *cloudsync.Schedule) {
	changed, fields := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, fields...)...)
	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if dcfg, err := mapDispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}

	if scfg, err := mapScheduleConfig(next); err != nil {
		a.log.Warn("invalid sync config; keeping previous", logx.Err(err))
	} else if err := sched.Apply(scfg); err != nil {
		a.log.Warn("sync schedule apply failed", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReload, Data: changed})
}

func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.String("id", e.ID), logx.Time("time", e.Time))
		}
	}
}

// chatSink forwards notices to the Telegram log chat.
type chatSink struct {
	ad     *telegram.Adapter
	target transport.ChatTarget
}

func (s chatSink) Notify(ctx context.Context, n notice.Notice) error {
	return s.ad.SendText(ctx, s.target, n.Text())
}
