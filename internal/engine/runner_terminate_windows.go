//go:build windows

package engine

import (
	"os/exec"
	"strconv"
)

func configureCommandForTermination(cmd *exec.Cmd) {}

// interruptCommand has no console signal to send on Windows; a cancelled tool is killed
// right away.
func interruptCommand(cmd *exec.Cmd) {
	terminateCommand(cmd)
}

// terminateCommand kills the whole process tree, since elastix distributions often ship
// batch wrappers around the executables.
func terminateCommand(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if cmd.Process.Pid > 0 {
		_ = exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid)).Run()
	}
	_ = cmd.Process.Kill()
}
