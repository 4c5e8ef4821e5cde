package transport

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bazelment/yoloswe/flx/internal/procattr"
	"github.com/bazelment/yoloswe/flx/logging"
)

// ProcessConfig describes a tool process to spawn.
type ProcessConfig struct {
	Env            map[string]string
	Logger         *slog.Logger
	Path           string
	Dir            string
	Args           []string
	InterruptAfter time.Duration // grace period after stdin closes before SIGINT
	KillAfter      time.Duration // grace period after SIGINT before SIGKILL
}

// Process is a spawned child whose stdin/stdout carry a line protocol and
// whose stderr is a separate, unordered line stream.
type Process struct {
	exitErr error
	stdin   io.WriteCloser
	stdout  *os.File
	stderr  *os.File
	cmd     *exec.Cmd
	out     *lineScanner
	errOut  *lineScanner
	done    chan struct{}
	logger  *slog.Logger
	config  ProcessConfig
	wmu     sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// SpawnProcess starts the process described by config. ctx bounds the
// lifetime of the child: cancelling it kills the process group.
//
// stdout and stderr use plain os pipes rather than exec's copying pipes so
// reads never race with Wait and trailing output is not lost at exit.
func SpawnProcess(ctx context.Context, config ProcessConfig) (*Process, error) {
	if config.InterruptAfter == 0 {
		config.InterruptAfter = procattr.DefaultInterruptAfter
	}
	if config.KillAfter == 0 {
		config.KillAfter = procattr.DefaultKillAfter
	}
	logger := logging.OrDiscard(config.Logger)

	cmd := exec.CommandContext(ctx, config.Path, config.Args...)
	procattr.Set(cmd)
	cmd.Dir = config.Dir
	if len(config.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range config.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Path: config.Path, Cause: err}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Path: config.Path, Cause: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, &SpawnError{Path: config.Path, Cause: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, &SpawnError{Path: config.Path, Cause: err}
	}
	// The child holds its own copies now.
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		cmd:    cmd,
		config: config,
		logger: logger,
		stdin:  stdin,
		stdout: stdoutR,
		stderr: stderrR,
		out:    newLineScanner(stdoutR),
		errOut: newLineScanner(stderrR),
		done:   make(chan struct{}),
	}
	logger.Debug("process started", "path", config.Path, "args", config.Args, "pid", cmd.Process.Pid)

	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	p.logger.Debug("process exited", "path", p.config.Path, "error", err)
	close(p.done)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// ReadLine reads the next stdout line.
func (p *Process) ReadLine() ([]byte, error) {
	return p.out.ReadLine()
}

// Stderr returns the stderr line stream.
func (p *Process) Stderr() LineSource {
	return p.errOut
}

// WriteLine writes line plus a newline to stdin.
func (p *Process) WriteLine(line []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &WriteError{Cause: ErrClosed}
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := p.stdin.Write(buf); err != nil {
		return &WriteError{Cause: err}
	}
	return nil
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the result of waiting on the process. It is only meaningful
// after Done is closed.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Close releases the process: stdin is closed, the tool is given a grace
// period, then the process group is interrupted and finally killed. The read
// ends of stdout and stderr are closed last so readers blocked on a
// grandchild still holding the pipe are released. Safe to call repeatedly.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// Not under wmu: a writer blocked on a full pipe must be released too.
	_ = p.stdin.Close()

	if !procattr.Stop(p.cmd.Process, p.done, p.config.InterruptAfter, p.config.KillAfter) {
		p.logger.Warn("process did not exit after kill", "path", p.config.Path, "pid", p.cmd.Process.Pid)
	}

	p.stdout.Close()
	p.stderr.Close()
	return nil
}
