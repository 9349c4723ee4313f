// Package core wires heraldbot together: config, logging, the Telegram
// adapter, the banner registry/scheduler, the capture pipeline, aliases,
// and the audit store.
package core

import (
	"context"
	"time"

	"heraldbot/internal/alias"
	"heraldbot/internal/banner"
	"heraldbot/internal/capture"
	"heraldbot/internal/config"
	rtsup "heraldbot/internal/runtime/supervisor"
	"heraldbot/internal/storage"
	"heraldbot/internal/transport"
	"heraldbot/internal/transport/telegram"
	"heraldbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	adapter *telegram.Adapter
	client  transport.Client

	reg      *banner.Registry
	sched    *banner.Scheduler
	pipeline *capture.Pipeline
	aliases  *alias.Store
	audit    storage.Store
	maint    *storage.Maintenance
	router   *Router

	captureEnabled bool

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()

	var audit storage.Store
	var maint *storage.Maintenance
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		audit, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if cfg.Storage.RetentionDays > 0 {
			retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
			maint = storage.NewMaintenance(audit, retention, logSvc.Logger().With(logx.String("comp", "storage.maint")))
		}
	}

	statePath := cfg.Banner.StatePath
	if statePath == "" {
		statePath = "./banner_schedules.json"
	}
	bannerLog := logSvc.Logger().With(logx.String("comp", "banner"))
	store := banner.NewStore(statePath, loc, bannerLog)
	reg := banner.NewRegistry(store, cfg.Banner.MinIntervalMinutes, bannerLog)
	reg.Load()

	tick, err := config.ParseDurationOrDefault("banner.tick", cfg.Banner.Tick, banner.DefaultTick)
	if err != nil {
		return nil, err
	}
	sched := banner.NewScheduler(reg, adapter, audit, tick, bannerLog)

	baseDelay, err := config.ParseDurationOrDefault("capture.base_delay", cfg.Capture.BaseDelay, capture.DefaultBaseDelay)
	if err != nil {
		return nil, err
	}
	pipeline := capture.New(adapter, audit, capture.Config{
		ArchiveChat:   cfg.Capture.ArchiveChatID,
		ArchiveThread: cfg.Capture.ArchiveThreadID,
		BaseDelay:     baseDelay,
		Location:      loc,
	}, logSvc.Logger().With(logx.String("comp", "capture")))

	var aliases *alias.Store
	if cfg.Alias.Path != "" {
		aliases = alias.NewStore(cfg.Alias.Path, logSvc.Logger().With(logx.String("comp", "alias")))
		aliases.Load()
	}

	router := NewRouter(adapter, reg, aliases, cfg.Telegram.OperatorUserIDs, loc,
		logSvc.Logger().With(logx.String("comp", "commands")))

	return &App{
		cfgPath:        cfgPath,
		cfgm:           cfgm,
		logSvc:         logSvc,
		log:            log,
		adapter:        adapter,
		client:         adapter,
		reg:            reg,
		sched:          sched,
		pipeline:       pipeline,
		aliases:        aliases,
		audit:          audit,
		maint:          maint,
		router:         router,
		captureEnabled: cfg.Capture.Enabled,
		updates:        make(chan transport.Update, 128),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.pipeline.Start(a.sup.Context())

	// The scheduler loop self-heals on unexpected exit; command dispatch
	// and config watching run for the life of the process.
	a.sup.GoRestart("banner.scheduler", a.sched.Run, 500*time.Millisecond, 30*time.Second)
	a.sup.Go0("updates.dispatch", a.dispatch)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", a.applyReloads)

	if a.maint != nil {
		if err := a.maint.Start(a.sup.Context()); err != nil {
			a.log.Warn("audit maintenance not started", logx.Err(err))
		}
	}

	a.log.Info("heraldbot started",
		logx.Int("banners", a.reg.Len()),
		logx.Bool("capture", a.captureEnabled))
	return nil
}

// dispatch fans inbound updates out to the capture pipeline (non-blocking
// spawn) and the command router. A slow capture must never delay the
// command path, and vice versa.
func (a *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-a.updates:
			if up.Message == nil {
				continue
			}
			if a.captureEnabled && up.Message.SelfDestruct {
				a.pipeline.Submit(up.Message)
			}
			a.router.HandleMessage(ctx, up.Message)
		}
	}
}

// applyReloads pushes committed config changes into the subsystems that
// can retune live. Transport and scheduler tick changes need a restart.
func (a *App) applyReloads(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging reconfigured", logx.String("level", cfg.Logging.Level))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("shutting down")
	if a.sup != nil {
		a.sup.Cancel()
	}
	_ = a.adapter.Stop(ctx)
	a.pipeline.Stop(ctx)

	if a.sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}

	// Final flush: the registry must hit disk before exit.
	a.reg.Flush()

	a.maint.Stop()
	if a.audit != nil {
		_ = a.audit.Close()
	}
	_ = a.logSvc.Close()
	return nil
}
