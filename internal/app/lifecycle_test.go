package app

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

func staticConfig(enabled bool, interval string) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		cfg := &config.Config{Reload: config.ReloadConfig{Enabled: enabled, Interval: interval}}
		cfg.ApplyDefaults()
		return cfg, nil
	}
}

// blockingApp counts its starts and runs until cancelled
func blockingApp(starts *atomic.Int32) AppFunc {
	return func(ctx context.Context, _ *config.Config, _ *logging.Logger) error {
		starts.Add(1)
		<-ctx.Done()
		return nil
	}
}

func runAsync(t *testing.T, ctx context.Context, load func() (*config.Config, error), app AppFunc,
	reload, shutdown chan os.Signal) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- run(ctx, logging.Discard(), load, app, true, reload, shutdown) }()
	return done
}

func await(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func TestShutdownSignalStopsTheApp(t *testing.T) {
	var starts atomic.Int32
	reload, shutdown := make(chan os.Signal, 1), make(chan os.Signal, 1)
	done := runAsync(t, context.Background(), staticConfig(false, ""), blockingApp(&starts), reload, shutdown)

	require.Eventually(t, func() bool { return starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	shutdown <- syscall.SIGTERM

	assert.NoError(t, await(t, done))
	assert.Equal(t, int32(1), starts.Load())
}

func TestReloadSignalRestartsTheApp(t *testing.T) {
	var starts, loads atomic.Int32
	load := func() (*config.Config, error) {
		loads.Add(1)
		return staticConfig(true, "1h")()
	}
	reload, shutdown := make(chan os.Signal, 1), make(chan os.Signal, 1)
	done := runAsync(t, context.Background(), load, blockingApp(&starts), reload, shutdown)

	require.Eventually(t, func() bool { return starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	reload <- syscall.SIGHUP
	require.Eventually(t, func() bool { return starts.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), loads.Load())

	shutdown <- syscall.SIGINT
	assert.NoError(t, await(t, done))
}

func TestReloadSignalIgnoredWhenDisabled(t *testing.T) {
	var starts atomic.Int32
	reload, shutdown := make(chan os.Signal, 1), make(chan os.Signal, 1)
	done := runAsync(t, context.Background(), staticConfig(false, ""), blockingApp(&starts), reload, shutdown)

	require.Eventually(t, func() bool { return starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	reload <- syscall.SIGHUP
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())

	shutdown <- syscall.SIGTERM
	assert.NoError(t, await(t, done))
}

func TestReloadOffForNonReloadableApp(t *testing.T) {
	var starts, loads atomic.Int32
	load := func() (*config.Config, error) {
		loads.Add(1)
		return staticConfig(true, "20ms")()
	}
	reload, shutdown := make(chan os.Signal, 1), make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), logging.Discard(), load, blockingApp(&starts), false, reload, shutdown)
	}()

	require.Eventually(t, func() bool { return starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	reload <- syscall.SIGHUP
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), loads.Load())

	shutdown <- syscall.SIGTERM
	assert.NoError(t, await(t, done))
}

func TestPeriodicReload(t *testing.T) {
	var starts atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(t, ctx, staticConfig(true, "20ms"), blockingApp(&starts), nil, nil)

	require.Eventually(t, func() bool { return starts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, await(t, done))
}

func TestReloadKeepsPreviousConfigOnLoadError(t *testing.T) {
	var loads atomic.Int32
	load := func() (*config.Config, error) {
		if loads.Add(1) > 1 {
			return nil, errors.New("broken file")
		}
		return staticConfig(true, "1h")()
	}
	var seen []string
	seenCh := make(chan string, 4)
	app := func(ctx context.Context, cfg *config.Config, _ *logging.Logger) error {
		seenCh <- cfg.Reload.Interval
		<-ctx.Done()
		return nil
	}
	reload, shutdown := make(chan os.Signal, 1), make(chan os.Signal, 1)
	done := runAsync(t, context.Background(), load, app, reload, shutdown)

	seen = append(seen, <-seenCh)
	reload <- syscall.SIGHUP
	seen = append(seen, <-seenCh)
	assert.Equal(t, []string{"1h", "1h"}, seen)

	shutdown <- syscall.SIGTERM
	assert.NoError(t, await(t, done))
}

func TestAppErrorIsReturned(t *testing.T) {
	boom := errors.New("listen tcp :8000: address already in use")
	app := func(context.Context, *config.Config, *logging.Logger) error { return boom }

	err := await(t, runAsync(t, context.Background(), staticConfig(false, ""), app, nil, nil))
	assert.ErrorIs(t, err, boom)
}

func TestInitialLoadErrorIsReturned(t *testing.T) {
	load := func() (*config.Config, error) { return nil, errors.New("no config") }
	app := func(context.Context, *config.Config, *logging.Logger) error {
		t.Error("app must not start")
		return nil
	}
	err := await(t, runAsync(t, context.Background(), load, app, nil, nil))
	assert.EqualError(t, err, "no config")
}

func TestReloadSettings(t *testing.T) {
	tests := []struct {
		name     string
		reload   config.ReloadConfig
		want     time.Duration
		wantOkay bool
	}{
		{"disabled", config.ReloadConfig{Enabled: false, Interval: "30m"}, 0, false},
		{"enabled", config.ReloadConfig{Enabled: true, Interval: "30m"}, 30 * time.Minute, true},
		{"unparsable", config.ReloadConfig{Enabled: true, Interval: "soon"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := reloadSettings(&config.Config{Reload: tt.reload})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOkay, ok)
		})
	}
}
