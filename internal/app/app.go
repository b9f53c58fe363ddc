package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"echse/internal/checkpoint"
	"echse/internal/clock"
	"echse/internal/config"
	"echse/internal/control"
	"echse/internal/daemon"
	"echse/internal/eventbus"
	"echse/internal/identity"
	"echse/internal/observability/debug"
	"echse/internal/runtime/supervisor"
	"echse/internal/storage"
	"echse/internal/task/engine"
	"echse/internal/task/scheduler"
	logx "echse/pkg/logx"
	"echse/pkg/systemd"
)

const statusEvery = 30 * time.Second

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine *engine.Service
	cp     *checkpoint.Checkpointer
	core   *scheduler.Core
	loop   *daemon.Loop
	srv    *control.Server
	ln     net.Listener
}

// New loads the configuration and builds every component. Nothing runs
// until Start.
func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	var cfg *config.Config
	if opts.ConfigPath != "" {
		c, err := cfgm.Parse()
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = &config.Config{}
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		opts.apply(c)
		return c.Validate()
	})

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log)
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()
	eng := engine.New(mapEngineConfig(cfg), log, bus)
	cp, err := checkpoint.New(afero.NewOsFs(), mapCheckpointConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	core := scheduler.New(scheduler.Config{Location: loc}, eng, identity.NewSystem(), cp, log, bus)
	loop := daemon.New(core, cp, eng.Exits(), clock.Real(), bus, log)

	return &App{
		opts:   opts,
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		engine: eng,
		cp:     cp,
		core:   core,
		loop:   loop,
		srv:    control.New(mapControlConfig(cfg), loop, log),
	}, nil
}

// Done is closed when the supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads the queue, binds the control socket and starts the loop.
func (a *App) Start(ctx context.Context) error {
	if err := a.loop.Load(); err != nil {
		a.log.Warn("queue load incomplete", logx.Err(err))
	}

	cfg := a.cfgm.Get()
	ln, err := control.Listen(socketPath(cfg))
	if err != nil {
		return err
	}
	a.ln = ln

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sup.Go("loop", a.loop.Run)
	a.sup.Go("control", func(c context.Context) error { return a.srv.Serve(c, ln) })

	if a.store != nil {
		rec := storage.NewRecorder(a.store, a.bus, a.log)
		a.sup.GoRestart("recorder", rec.Run)
	}

	events, unsub := a.bus.Subscribe(128, "task.")
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.sup.Go("status", a.status)

	if cfg.Debug.Enabled {
		dbg := debug.New(debug.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}, a.debugStatus, a.log)
		a.sup.GoRestart("debug", dbg.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}

	if a.opts.ConfigPath != "" {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
			return nil
		})
		a.sup.GoRestart("config.watch", a.cfgm.Watch)
	}

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("notified service manager")
	}
	a.log.Info("echsd started",
		logx.String("socket", ln.Addr().String()),
		logx.String("queue_dir", a.cp.Dir()),
		logx.Int("tasks", a.core.Len()),
		logx.Bool("dry_run", cfg.Daemon.DryRun),
	)
	return nil
}

// status publishes a summary line to the service manager.
func (a *App) status(ctx context.Context) error {
	t := time.NewTicker(statusEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		s, err := a.loop.Status(ctx)
		if err != nil {
			return nil
		}
		msg := fmt.Sprintf("%d tasks, %d running", s.Tasks, s.Children)
		if !s.Next.IsZero() {
			msg += ", next " + humanize.Time(s.Next)
		}
		_, _ = systemd.Status(msg)
	}
}

// debugStatus is the /status document of the debug server.
func (a *App) debugStatus(ctx context.Context) (any, error) {
	s, err := a.loop.Status(ctx)
	if err != nil {
		return nil, err
	}
	return struct {
		Scheduler  scheduler.Snapshot `json:"scheduler"`
		Goroutines []supervisor.Stats `json:"goroutines"`
		Dropped    uint64             `json:"events_dropped"`
	}{s, a.sup.Snapshot(), a.bus.Dropped()}, nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

// apply takes over what can change at runtime: logging, dry-run mode and
// history size.
func (a *App) apply(old, cfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if len(restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(restart, ",")))
	}
	a.logs.Apply(mapLogConfig(cfg))
	a.engine.Apply(mapEngineConfig(cfg))
}

// Stop shuts down in order: stop accepting, let the loop write its final
// checkpoint, then release everything else. Every step is bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("control", time.Second, func(context.Context) error { a.srv.Close(); return nil })
	a.sup.Cancel()
	step("loop", 10*time.Second, func(c context.Context) error {
		select {
		case <-a.loop.Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("engine", time.Second, func(context.Context) error { a.engine.Close(); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
