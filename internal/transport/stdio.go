package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/common/process"
)

// maxStderrLine bounds a single forwarded stderr line
const maxStderrLine = 1 << 20

// StdioOptions describes the child process to spawn
type StdioOptions struct {
	Command    string
	Args       []string
	Cwd        string
	Env        map[string]string
	Sequential bool
	Options
}

// StdioChannel speaks newline-delimited JSON with a child process
type StdioChannel struct {
	*inbox

	cmd         *exec.Cmd
	stdin       io.WriteCloser
	writeMu     sync.Mutex
	logger      *logging.Logger
	grace       time.Duration
	interleaved bool

	exited    chan struct{}
	exitErr   error
	closeOnce sync.Once
}

// OpenStdio starts the child process and begins reading its stdout.
// The child is not tied to ctx; it lives until Close or until it exits.
func OpenStdio(ctx context.Context, opts StdioOptions, logger *logging.Logger) (*StdioChannel, error) {
	opts.Options = opts.Options.withDefaults()
	if logger == nil {
		logger = opts.Logger
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = process.MergeEnv(opts.Env)
	process.Isolate(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, closedError("failed to create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, closedError("failed to create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, closedError("failed to create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, closedError(fmt.Sprintf("failed to start %q", opts.Command), err)
	}

	c := &StdioChannel{
		inbox:       newInbox(opts.ReceiveTimeout),
		cmd:         cmd,
		stdin:       stdin,
		logger:      logger,
		grace:       opts.CloseGracePeriod,
		interleaved: !opts.Sequential,
		exited:      make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		c.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		c.forwardStderr(stderr)
	}()
	go func() {
		// Wait closes the pipes, so it must follow the readers
		readers.Wait()
		c.exitErr = cmd.Wait()
		close(c.exited)
	}()

	logger.InfoKV("Started stdio server", "command", opts.Command, "args", opts.Args, "pid", cmd.Process.Pid)
	return c, nil
}

func (c *StdioChannel) readStdout(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			msg := make([]byte, len(trimmed))
			copy(msg, trimmed)
			if !c.deliver(msg) {
				return
			}
		}
		if err != nil {
			break
		}
	}

	// stdout is gone; give the child a moment to report its exit status
	select {
	case <-c.exited:
	case <-time.After(c.grace):
	}
	c.shutdown(c.exitError())
}

func (c *StdioChannel) exitError() error {
	select {
	case <-c.exited:
		if c.exitErr != nil {
			return closedError("server process exited", c.exitErr)
		}
		return closedError("server process exited with status 0", nil)
	default:
		return closedError("server closed its output stream", nil)
	}
}

func (c *StdioChannel) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		c.logger.InfoKV("server stderr", "line", scanner.Text())
	}
	// drain anything past an oversized line so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, stderr)
}

// Send writes msg followed by a newline to the child's stdin
func (c *StdioChannel) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed() {
		return c.closedErr()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	frame := make([]byte, 0, len(msg)+1)
	frame = append(frame, msg...)
	frame = append(frame, '\n')
	if _, err := c.stdin.Write(frame); err != nil {
		c.shutdown(closedError("failed to write to server stdin", err))
		return c.closedErr()
	}
	return nil
}

// Interleaved reports whether the child accepts concurrent requests
func (c *StdioChannel) Interleaved() bool {
	return c.interleaved
}

// Pid returns the child process id
func (c *StdioChannel) Pid() int {
	return c.cmd.Process.Pid
}

// Close closes the child's stdin, waits the grace period for it to exit, then kills its process group
func (c *StdioChannel) Close() error {
	c.closeOnce.Do(func() {
		c.shutdown(closedError("channel closed", nil))

		c.writeMu.Lock()
		_ = c.stdin.Close()
		c.writeMu.Unlock()

		select {
		case <-c.exited:
			return
		case <-time.After(c.grace):
		}

		c.logger.WarnKV("Server did not exit after stdin closed, killing process group", "pid", c.cmd.Process.Pid, "grace", c.grace)
		if err := process.Kill(c.cmd); err != nil {
			c.logger.DebugKV("Kill returned", "error", err)
		}
		select {
		case <-c.exited:
		case <-time.After(process.DefaultWaitDelay):
			c.logger.WarnKV("Server output pipes still open after kill", "pid", c.cmd.Process.Pid)
		}
	})
	return nil
}

// Exited is closed once the child has been reaped
func (c *StdioChannel) Exited() <-chan struct{} {
	return c.exited
}

var _ Channel = (*StdioChannel)(nil)
