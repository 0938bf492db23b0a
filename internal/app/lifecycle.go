// Package app runs a long-lived host instance and restarts it on reload triggers
package app

import (
	"context"
	"os"
	"time"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
)

const defaultShutdownTimeout = 10 * time.Second

// Trigger types
const (
	TriggerSignal   = monitoring.TriggerSignal
	TriggerPeriodic = monitoring.TriggerPeriodic
	TriggerShutdown = "shutdown"
)

// ReloadTrigger represents the type of trigger that ended an application run
type ReloadTrigger struct {
	Type   string
	Signal os.Signal
}

// AppFunc runs one application instance until ctx is cancelled
type AppFunc func(ctx context.Context, cfg *config.Config, logger *logging.Logger) error

// RunWithReload loads configFile and runs appFunc with it. SIGINT and SIGTERM stop the
// application gracefully. When reload is enabled, SIGUSR1 or the reload interval stops the
// running instance, re-reads the configuration and starts a fresh one.
func RunWithReload(ctx context.Context, logger *logging.Logger, configFile string, appFunc AppFunc) error {
	reloadChan, shutdownChan, cleanup := setupSignalHandlers()
	defer cleanup()

	load := func() (*config.Config, error) {
		return config.LoadConfig(configFile, logger)
	}
	return run(ctx, logger, load, appFunc, true, reloadChan, shutdownChan)
}

// Run is RunWithReload for applications that cannot be restarted in place, such as a
// server bound to the process's stdin and stdout. Reload settings in the configuration
// and reload signals are ignored; SIGINT and SIGTERM still stop the application.
func Run(ctx context.Context, logger *logging.Logger, configFile string, appFunc AppFunc) error {
	reloadChan, shutdownChan, cleanup := setupSignalHandlers()
	defer cleanup()

	load := func() (*config.Config, error) {
		return config.LoadConfig(configFile, logger)
	}
	return run(ctx, logger, load, appFunc, false, reloadChan, shutdownChan)
}

func run(ctx context.Context, logger *logging.Logger, load func() (*config.Config, error), appFunc AppFunc,
	reloadable bool, reloadChan, shutdownChan <-chan os.Signal) error {
	var cfg *config.Config
	for {
		reloadStartTime := time.Now()

		next, err := load()
		switch {
		case err == nil:
			cfg = next
		case cfg == nil:
			return err
		default:
			logger.ErrorKV("Failed to reload configuration, keeping the previous one", "error", err)
		}

		interval, reloadEnabled := reloadSettings(cfg)
		if reloadEnabled && !reloadable {
			logger.Info("Reload is configured but not supported by this application, ignoring it")
			reloadEnabled = false
		}
		if reloadEnabled {
			logger.InfoKV("Reload enabled", "interval", interval)
		}

		appCtx, appCancel := context.WithCancel(ctx)
		appDone := make(chan error, 1)
		go func(cfg *config.Config) {
			appDone <- appFunc(appCtx, cfg, logger)
		}(cfg)

		trigger, finished, appErr := awaitTrigger(ctx, logger, interval, reloadEnabled, appDone, reloadChan, shutdownChan)
		if finished {
			appCancel()
			logger.InfoKV("Application completed", "error", appErr)
			return appErr
		}

		appCancel()
		stopErr := awaitShutdown(logger, appDone)

		if trigger.Type == TriggerShutdown {
			logger.Info("Application shutdown completed")
			return stopErr
		}

		monitoring.RecordReload(trigger.Type, time.Since(reloadStartTime))
		logger.InfoKV("Current application instance shut down, reinitializing...", "trigger", trigger.Type)
	}
}

// awaitTrigger blocks until the application exits on its own (finished) or a trigger fires
func awaitTrigger(ctx context.Context, logger *logging.Logger, interval time.Duration, reloadEnabled bool,
	appDone <-chan error, reloadChan, shutdownChan <-chan os.Signal) (ReloadTrigger, bool, error) {
	var tick <-chan time.Time
	if reloadEnabled {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case err := <-appDone:
			return ReloadTrigger{}, true, err

		case <-ctx.Done():
			return ReloadTrigger{Type: TriggerShutdown}, false, nil

		case sig := <-shutdownChan:
			logger.InfoKV("Shutdown signal received", "signal", sig)
			return ReloadTrigger{Type: TriggerShutdown, Signal: sig}, false, nil

		case sig := <-reloadChan:
			if !reloadEnabled {
				logger.InfoKV("Reload signal ignored, reload is disabled", "signal", sig)
				continue
			}
			logger.InfoKV("Reload signal received", "signal", sig)
			return ReloadTrigger{Type: TriggerSignal, Signal: sig}, false, nil

		case <-tick:
			logger.Info("Periodic reload triggered")
			return ReloadTrigger{Type: TriggerPeriodic}, false, nil
		}
	}
}

// awaitShutdown waits for a cancelled application to return
func awaitShutdown(logger *logging.Logger, appDone <-chan error) error {
	select {
	case err := <-appDone:
		return err
	case <-time.After(defaultShutdownTimeout):
		logger.WarnKV("Application shutdown timed out", "timeout", defaultShutdownTimeout)
		return nil
	}
}

// reloadSettings reports the reload interval, or false when reload is off.
// The interval has already been validated by config.LoadConfig.
func reloadSettings(cfg *config.Config) (time.Duration, bool) {
	if !cfg.Reload.Enabled {
		return 0, false
	}
	interval, err := time.ParseDuration(cfg.Reload.Interval)
	if err != nil || interval <= 0 {
		return 0, false
	}
	return interval, true
}
