//go:build linux

package process

import "syscall"

// sysProcAttr puts the child in its own process group and kills it if the
// supervisor dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
