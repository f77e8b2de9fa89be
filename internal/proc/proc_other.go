//go:build !unix

package proc

import (
	"os"
	"syscall"
)

func GroupAttr() *syscall.SysProcAttr {
	return nil
}

func KillTree(p *os.Process) {
	_ = p.Kill()
}
