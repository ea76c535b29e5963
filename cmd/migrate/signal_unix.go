//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals lists the signals that trigger a graceful shutdown.
// SIGTERM is what process managers (systemd, kubernetes) send to ask
// a long-running migration to stop cleanly.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
