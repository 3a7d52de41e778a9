//go:build unix

package execx

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcAttrs places the child in its own process group and arranges
// for cancellation to kill the whole group, so shell tasks cannot leave
// grandchildren running after Cancel.
func configureProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if err == unix.ESRCH {
			return nil
		}
		return err
	}
}
