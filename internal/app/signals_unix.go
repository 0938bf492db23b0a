//go:build unix

package app

import (
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandlers routes SIGUSR1 and SIGHUP to reload and SIGINT/SIGTERM to shutdown
func setupSignalHandlers() (reload, shutdown chan os.Signal, cleanup func()) {
	reload = make(chan os.Signal, 1)
	shutdown = make(chan os.Signal, 1)

	signal.Notify(reload, syscall.SIGUSR1, syscall.SIGHUP)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	return reload, shutdown, func() {
		signal.Stop(reload)
		signal.Stop(shutdown)
	}
}
