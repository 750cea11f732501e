//go:build !unix

package command

import "syscall"

func detachedAttr() *syscall.SysProcAttr {
	return nil
}
