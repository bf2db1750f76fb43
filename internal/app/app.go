// Package app wires the settings store, the dispatcher, cloud sync and the
// triggers into one process. Every user-facing operation (CLI, HTTP, chat)
// goes through an *App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"anypush/internal/channel/bark"
	"anypush/internal/channel/wechat"
	"anypush/internal/cloudsync"
	"anypush/internal/config"
	"anypush/internal/content"
	"anypush/internal/credential"
	"anypush/internal/dispatch"
	"anypush/internal/eventbus"
	"anypush/internal/notice"
	"anypush/internal/settings"
	"anypush/internal/storage"
	logx "anypush/pkg/logx"
)

type App struct {
	*Pusher

	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Bus

	kv      storage.Store
	store   *settings.Store
	creds   *credential.Store
	disp    *dispatch.Dispatcher
	notices *notice.Center
	syncer  *cloudsync.Syncer
}

// NewApp loads the config at cfgPath (defaults when the file is missing),
// opens the settings backend and seeds default settings.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, found, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)
	if !found {
		log.Debug("config file not found, using defaults", logx.String("path", cfgPath))
	}

	creds := credential.New(mapCredentialConfig(cfg))

	sc, err := mapStorageConfig(cfg, creds)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	kv, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	store := settings.New(kv, root)
	if err := store.InitializeDefaults(ctx); err != nil {
		_ = kv.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("initialize settings: %w", err)
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = kv.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	client := &http.Client{}

	reg := dispatch.NewRegistry()
	reg.Register(settings.ServiceWechat, wechat.Build)
	reg.Register(settings.ServiceBark, bark.Build)

	disp := dispatch.New(store, reg, client, bus, root)
	disp.Apply(dcfg)

	notices := notice.NewCenter(root, 0)

	log.Info("app ready", logx.String("storage", sc.Driver), logx.Any("services", reg.Keys()))
	return &App{
		Pusher:  NewPusher(disp, notices, root),
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		kv:      kv,
		store:   store,
		creds:   creds,
		disp:    disp,
		notices: notices,
		syncer:  cloudsync.New(client, creds, root),
	}, nil
}

// Close releases the storage backend and flushes the logger.
func (a *App) Close() error {
	a.bus.Close()
	err := a.kv.Close()
	_ = a.logs.Close()
	return err
}

// PushText and PushURL are the two content entry points of the CLI.
func (a *App) PushText(ctx context.Context, text string, src content.Source) notice.Report {
	return a.Push(ctx, content.Item{Kind: content.KindText, Content: text, Source: src})
}

func (a *App) PushURL(ctx context.Context, link, title string) notice.Report {
	return a.Push(ctx, content.Item{
		Kind:    content.KindURL,
		Content: link,
		Source:  content.Source{URL: link, Title: title},
	})
}

func (a *App) Settings(ctx context.Context) (settings.Bundle, error) {
	return a.store.Bundle(ctx)
}

// SaveSettings validates and stores b, then uploads to the configured cloud
// target. A failed upload is reported as an error although the settings were
// saved.
func (a *App) SaveSettings(ctx context.Context, b settings.Bundle) (settings.Bundle, error) {
	saved, err := a.store.Save(ctx, b)
	if err != nil {
		return saved, err
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeSettingsSave})
	if saved.SyncConfig.Type == settings.SyncNone {
		return saved, nil
	}
	if _, err := a.upload(ctx, saved.SyncConfig); err != nil {
		return saved, fmt.Errorf("settings saved but sync failed: %w", err)
	}
	return saved, nil
}

func (a *App) ExportSettings(ctx context.Context) ([]byte, error) {
	return a.store.Export(ctx)
}

func (a *App) ImportSettings(ctx context.Context, data []byte) ([]string, error) {
	return a.store.Import(ctx, data)
}

// ResetSettings wipes every stored key and seeds the defaults again.
func (a *App) ResetSettings(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	a.log.Info("settings reset")
	return a.store.InitializeDefaults(ctx)
}

func (a *App) Notices() []notice.Notice { return a.notices.History() }

// SyncPush uploads the current settings. It reports whether anything was sent.
func (a *App) SyncPush(ctx context.Context) (bool, error) {
	cfg, err := a.store.SyncConfig(ctx)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		def := settings.DefaultSyncConfig()
		cfg = &def
	}
	return a.upload(ctx, *cfg)
}

// SyncPull downloads the remote document and imports it atomically.
func (a *App) SyncPull(ctx context.Context) ([]string, error) {
	cfg, err := a.store.SyncConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("sync is not configured")
	}
	data, err := a.syncer.Download(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	return a.store.Import(ctx, data)
}

// SetSecret stores value in the keyring under name.
func (a *App) SetSecret(name, value string) error {
	if err := a.creds.Set(name, value); err != nil {
		return err
	}
	a.log.Info("secret stored", logx.String("name", name))
	return nil
}

func (a *App) upload(ctx context.Context, cfg settings.SyncConfig) (bool, error) {
	payload, err := a.store.SyncPayload(ctx)
	if err != nil {
		return false, err
	}
	start := time.Now()
	sent, err := a.syncer.Upload(ctx, cfg, payload)
	if err != nil {
		return false, err
	}
	if sent {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeSettingsSync, Data: string(cfg.Type)})
		a.log.Debug("settings synced", logx.Duration("took", time.Since(start)))
	}
	return sent, nil
}
