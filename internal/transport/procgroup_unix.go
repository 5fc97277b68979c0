//go:build unix

package transport

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places a spawned server in its own process group so
// signals sent to the gateway's terminal process group do not reach it.
// Closing the connection kills only the server process, not the group.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
