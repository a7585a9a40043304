//go:build !linux

package pipe

import "syscall"

// procAttr puts the tool in its own process group so cancellation can kill
// the whole tree.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
