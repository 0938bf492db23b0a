//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// Windows has no signal for a whole group; Kill ends the direct child only.
func killGroup(p *os.Process) error {
	return p.Kill()
}

// ShellCommand returns the argv prefix used to run a command line through the shell
func ShellCommand(line string) (string, []string) {
	return "cmd", []string{"/C", line}
}
