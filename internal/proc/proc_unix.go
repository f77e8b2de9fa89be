//go:build unix

// Package proc holds the platform-specific process-group plumbing shared by
// the helper runner and the legacy bridge.
package proc

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// GroupAttr puts the child in its own process group so a kill reaches any
// grandchildren it spawned (test runners, compilers).
func GroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// KillTree force-kills the process group rooted at p.
func KillTree(p *os.Process) {
	_ = unix.Kill(-p.Pid, unix.SIGKILL)
}
