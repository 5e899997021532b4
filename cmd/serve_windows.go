//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs leaves the child attached; Windows has no setsid.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.Stdin = nil
}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Both stop signals end in TerminateProcess on Windows.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
