// Package shell provides the terminal tool: it runs a command line through the system shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/common/process"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/tools"
)

// ToolName is the name the terminal tool is registered under
const ToolName = "terminal"

const description = `Run terminal commands and return the output.

Args:
    command: The shell command to execute
    cwd: Working directory for the command (optional)

Returns:
    The command output (stdout and stderr)`

// Options configures the terminal tool
type Options struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// Output is what a finished command produced. A non-zero ExitCode is not an error.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// String renders the output the way the terminal tool reports it
func (o Output) String() string {
	var parts []string
	if o.Stdout != "" {
		parts = append(parts, "STDOUT:\n"+o.Stdout)
	}
	if o.Stderr != "" {
		parts = append(parts, "STDERR:\n"+o.Stderr)
	}
	if len(parts) == 0 {
		parts = append(parts, "Command executed successfully with no output.")
	}
	parts = append(parts, fmt.Sprintf("\nReturn code: %d", o.ExitCode))
	return strings.Join(parts, "\n\n")
}

// Register adds the terminal tool to reg
func Register(reg *tools.Registry, opts Options) error {
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultToolTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithName("terminal")

	schema := tools.Object(
		tools.Prop("command", tools.String("The shell command to execute")),
		tools.Prop("cwd", tools.String("Working directory for the command (optional)")),
	).Require("command")

	return reg.Register(ToolName, description, schema, func(ctx context.Context, args tools.Args) (*mcp.CallToolResult, error) {
		command, _ := args.String("command")
		cwd, _ := args.String("cwd")
		logger.DebugKV("Running command", "command", command, "cwd", cwd)

		out, err := Run(ctx, command, cwd, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return tools.Text(out.String()), nil
	}, tools.WithTimeout(opts.Timeout))
}

// Run executes command with sh -c (cmd /C on windows) in its own process group.
// When timeout elapses the whole group is killed and the partial output is attached to the error.
func Run(ctx context.Context, command, cwd string, timeout time.Duration) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, argv := process.ShellCommand(command)
	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Dir = cwd
	process.Prepare(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		seconds := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
		return out, customErrors.NewToolErrorf(customErrors.KindToolExecution,
			"Command timed out after %s seconds.", seconds).
			WithData("stdout", out.Stdout).
			WithData("stderr", out.Stderr)
	case errors.Is(ctx.Err(), context.Canceled):
		return out, customErrors.WrapToolError(ctx.Err(), customErrors.KindCancelled, "command cancelled")
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, customErrors.WrapToolError(err, customErrors.KindToolExecution, "Error executing command")
	}
	return out, nil
}
