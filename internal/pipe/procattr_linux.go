package pipe

import "syscall"

// procAttr puts the tool in its own process group, so cancellation can kill
// the whole tree, and has the kernel kill it if the driver dies first.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
