// Package process spawns child processes in their own process group so that a
// timeout or shutdown can terminate the whole tree, not just the direct child.
package process

import (
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long Wait blocks on the child's output pipes after it is killed
const DefaultWaitDelay = 2 * time.Second

// Prepare configures a cmd built with exec.CommandContext so that cancelling its
// context kills the whole process group
func Prepare(cmd *exec.Cmd) {
	Isolate(cmd)
	cmd.Cancel = func() error {
		return Kill(cmd)
	}
	cmd.WaitDelay = DefaultWaitDelay
}

// Isolate starts cmd in its own process group without tying it to a context.
// The caller stops it with Kill.
func Isolate(cmd *exec.Cmd) {
	setProcessGroup(cmd)
}

// Kill terminates the process group started for cmd. It is a no-op if cmd never started.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return killGroup(cmd.Process)
}

// MergeEnv returns the parent environment with overrides applied, in KEY=VALUE form
func MergeEnv(overrides map[string]string) []string {
	envMap := make(map[string]string)
	order := make([]string, 0)
	for _, entry := range os.Environ() {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if _, seen := envMap[parts[0]]; !seen {
			order = append(order, parts[0])
		}
		envMap[parts[0]] = parts[1]
	}
	for key, value := range overrides {
		if _, seen := envMap[key]; !seen {
			order = append(order, key)
		}
		envMap[key] = value
	}

	env := make([]string, 0, len(order))
	for _, key := range order {
		env = append(env, key+"="+envMap[key])
	}
	return env
}
