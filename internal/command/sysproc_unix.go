//go:build unix

package command

import "syscall"

// detachedAttr puts the child in its own process group so a terminal
// interrupt aimed at guardian does not reach the daemon directly.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
