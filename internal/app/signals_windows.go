//go:build windows

package app

import (
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandlers only wires shutdown; there is no reload signal on Windows,
// so reload happens on the periodic interval alone
func setupSignalHandlers() (reload, shutdown chan os.Signal, cleanup func()) {
	reload = make(chan os.Signal, 1)
	shutdown = make(chan os.Signal, 1)

	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return reload, shutdown, func() {
		signal.Stop(shutdown)
	}
}
