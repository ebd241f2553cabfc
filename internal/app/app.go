package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"notifysync/internal/api"
	"notifysync/internal/client"
	"notifysync/internal/config"
	"notifysync/internal/desktop"
	"notifysync/internal/runtime/supervisor"
	"notifysync/internal/storage"
	logx "notifysync/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	closePlatform func() error

	client *client.Client
	cron   *cron.Cron
	resync string
}

// NewApp loads and validates the config and builds every component. Nothing
// connects until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		resync:  strings.TrimSpace(cfg.Sync.Resync),
	}
	if err := a.build(cfg); err != nil {
		if store != nil {
			_ = store.Close()
		}
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *Config) error {
	opts, err := mapClientOptions(cfg)
	if err != nil {
		return err
	}
	acfg, err := mapAPIConfig(cfg)
	if err != nil {
		return err
	}
	backend, err := api.New(acfg, api.WithLogger(a.log.With(logx.String("comp", "api"))))
	if err != nil {
		return err
	}

	plog := a.log.With(logx.String("comp", "desktop"))
	platform, closePlatform, err := openPlatform(context.Background(), cfg, plog)
	if err != nil {
		return err
	}
	a.closePlatform = closePlatform

	deps := client.Deps{
		Backend:  backend,
		Platform: platform,
		Navigator: desktop.NavigatorFunc(func(target string) {
			plog.Info("open console route", logx.String("route", target))
		}),
		Logger: a.log.With(logx.String("comp", "client")),
	}
	if a.store != nil {
		deps.Audit = a.store
		if opts.Desktop.PersistSeen {
			deps.Seen = a.store
		}
	}
	c, err := client.New(opts, deps)
	if err != nil {
		_ = closePlatform()
		return err
	}
	a.client = c
	return nil
}

// validate is the transactional check run at startup and before a reloaded
// config is committed.
func validate(cfg *Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapClientOptions(cfg); err != nil {
		return err
	}
	if _, err := mapAPIConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if r := strings.TrimSpace(cfg.Sync.Resync); r != "" {
		if _, err := ParseSchedule(r); err != nil {
			return fmt.Errorf("sync.resync: %w", err)
		}
	}
	return nil
}

func (a *App) Client() *client.Client { return a.client }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error { return validate(cfg) })

	if err := a.client.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.startResync(); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = drainLatest(sub, newCfg)
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	cfg := a.cfgm.Get()
	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.String("user", strings.TrimSpace(cfg.Server.UserID)),
		logx.Redact("token", cfg.Server.Token),
		logx.String("resync", a.resync),
	)
	return nil
}

// drainLatest coalesces a burst of reloads into the newest config.
func drainLatest(sub <-chan *Config, cur *Config) *Config {
	for {
		select {
		case next, ok := <-sub:
			if !ok {
				return cur
			}
			if next != nil {
				cur = next
			}
		default:
			return cur
		}
	}
}

func (a *App) startResync() error {
	if a.resync == "" {
		return nil
	}
	ps, err := ParseSchedule(a.resync)
	if err != nil {
		return err
	}
	sched, jitter, err := ps.Schedule(time.Now(), "resync")
	if err != nil {
		return err
	}
	clog := cronLogger{a.log.With(logx.String("comp", "resync"))}
	a.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.Local),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	a.cron.Schedule(sched, cron.FuncJob(a.runResync))
	a.cron.Start()
	a.log.Debug("resync scheduled", logx.String("spec", a.resync), logx.Duration("startup_spread", jitter))
	return nil
}

func (a *App) runResync() {
	ctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
	defer cancel()
	start := time.Now()
	if err := a.client.Refresh(ctx); err != nil {
		return
	}
	a.log.Debug("resync done", logx.Duration("took", time.Since(start)))
}

// applyConfig applies the hot sections (logging, desktop) and reports the
// rest as needing a restart.
func (a *App) applyConfig(prev, next *Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if cold := config.RestartRequired(sections); len(cold) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(cold, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if prev != nil && desktopDriver(prev) != desktopDriver(next) {
		a.log.Warn("desktop.driver changed; restart required for the new driver")
	}
	dc, err := mapDesktopConfig(next)
	if err != nil {
		a.log.Warn("invalid desktop config; keeping previous", logx.Err(err))
	} else {
		a.client.ApplyDesktop(dc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	a.runStopSteps(ctx, []stopStep{
		{"resync", time.Second, func(c context.Context) error {
			if a.cron == nil {
				return nil
			}
			select {
			case <-a.cron.Stop().Done():
				return nil
			case <-c.Done():
				return c.Err()
			}
		}},
		{"client", 3 * time.Second, func(context.Context) error { a.client.Dispose(); return nil }},
		{"desktop", time.Second, func(context.Context) error { return a.closePlatform() }},
		{"storage", time.Second, func(context.Context) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		}},
		{"supervisor", 2 * time.Second, func(c context.Context) error {
			n := a.sup.Counters()
			a.log.Debug("waiting for goroutines", logx.Int64("active", n.Active), logx.Uint64("started", n.Started))
			return a.sup.Wait(c)
		}},
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
