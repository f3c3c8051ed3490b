//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// interruptSignals includes SIGHUP so closing the terminal stops a running registration.
func interruptSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}
