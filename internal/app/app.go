// Package app wires the configuration, logging, delivery, journal and HTTP
// layers into one runnable gateway process.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"tgnotify/internal/config"
	"tgnotify/internal/gateway"
	"tgnotify/internal/journal"
	"tgnotify/internal/telegram"
	"tgnotify/internal/topics"
	"tgnotify/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	client  *telegram.Client
	store   journal.Store
	sweeper *journal.Sweeper
	handler *gateway.Handler
	server  *gateway.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads and validates the config at cfgPath and constructs every
// subsystem. Nothing is listening yet; call Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, config.DefaultTelegramTimeout)
	if err != nil {
		return nil, err
	}
	client, err := telegram.New(telegram.Config{
		Secret:     cfg.Telegram.Secret,
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busy, err := config.ParseDurationOrDefault("journal.busy_timeout", cfg.Journal.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	store, err := journal.Open(journal.Config{
		Driver:      cfg.Journal.Driver,
		Path:        cfg.Journal.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "journal")))
	if err != nil {
		return nil, err
	}

	var sweeper *journal.Sweeper
	if store != nil {
		retention, err := config.ParseDurationOrDefault("journal.retention", cfg.Journal.Retention, config.DefaultRetention)
		if err != nil {
			return nil, err
		}
		sweeper, err = journal.NewSweeper(store, cfg.Journal.SweepSchedule, retention, log.With(logx.String("comp", "sweeper")))
		if err != nil {
			return nil, err
		}
	}

	handler := gateway.NewHandler(client, store, log.With(logx.String("comp", "gateway")))
	reg, err := topics.Build(cfg.Topics)
	if err != nil {
		return nil, err
	}
	handler.Apply(reg, gateway.Policy{
		AuthFailure:         cfg.Policy.AuthFailureMode(),
		DistinguishTimeouts: cfg.Policy.DistinguishTimeouts,
	}, cfg.HTTP.MaxBodyBytes)

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		client:  client,
		store:   store,
		sweeper: sweeper,
		handler: handler,
		server:  gateway.NewServer(handler, log.With(logx.String("comp", "http"))),
	}, nil
}

// Addr reports the bound public listen address once Start returned.
func (a *App) Addr() string { return a.server.Addr() }

// Start binds the listener, begins watching the config file for hot
// reloads, and notifies systemd readiness when running under it.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	readTO, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 0)
	if err != nil {
		return err
	}
	writeTO, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 0)
	if err != nil {
		return err
	}
	idleTO, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, 0)
	if err != nil {
		return err
	}

	if err := a.server.Start(gateway.ServerConfig{
		Listen:       cfg.Listen,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
		PprofAddr:    cfg.Debug.PprofAddr,
	}); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if a.sweeper != nil {
		a.sweeper.Start()
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(next)
			}
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("gateway started",
		logx.String("addr", a.server.Addr()),
		logx.Int("topics", len(cfg.Topics)),
	)
	return nil
}

// applyReload pushes a validated config snapshot into the hot-reloadable
// subsystems. Listen address, Telegram credentials and journal driver stay
// as loaded at startup.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	reg, err := topics.Build(cfg.Topics)
	if err != nil {
		// Validate() vets allow-lists before publish, so this is a bug,
		// not an operator mistake. Keep the previous table.
		a.log.Error("rebuilding topic table failed", logx.Err(err))
		return
	}
	a.handler.Apply(reg, gateway.Policy{
		AuthFailure:         cfg.Policy.AuthFailureMode(),
		DistinguishTimeouts: cfg.Policy.DistinguishTimeouts,
	}, cfg.HTTP.MaxBodyBytes)

	a.log.Info("config reloaded", logx.Int("topics", len(cfg.Topics)))
}

// Stop tears the process down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err == nil && sent {
		a.log.Debug("sd_notify stopping sent")
	}

	if a.cancel != nil {
		a.cancel()
	}

	err := a.server.Stop(ctx)

	if a.sweeper != nil {
		a.sweeper.Stop(ctx)
	}
	a.wg.Wait()

	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	a.log.Info("gateway stopped")
	_ = a.logs.Close()
	return err
}
