package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// SignalError is the synthetic signal name of a process-level error.
const SignalError = "ERROR"

var (
	ErrNotStarted     = errors.New("process not started")
	ErrAlreadyStarted = errors.New("process already started")
)

// Exit describes how a run ended. Code is -1 when the process was terminated
// by a signal.
type Exit struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
	Err    error  `json:"-"`
}

// ErrorExit is the outcome recorded for a run that failed at the process
// level (spawn or wait failure).
func ErrorExit(err error) Exit {
	return Exit{Code: 1, Signal: SignalError, Err: err}
}

// Clean reports a zero exit code without a terminating signal.
func (e Exit) Clean() bool {
	return e.Code == 0 && e.Signal == "" && e.Err == nil
}

func (e Exit) String() string {
	sig := e.Signal
	if sig == "" {
		sig = "none"
	}
	if e.Err != nil {
		return fmt.Sprintf("code %d (signal: %s): %v", e.Code, sig, e.Err)
	}
	return fmt.Sprintf("code %d (signal: %s)", e.Code, sig)
}

// Process is one OS process of a unit, placed in its own process group so
// that signals reach any children it spawns.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exit      Exit
}

func New(spec Spec) *Process { return &Process{spec: spec} }

func (p *Process) Name() string { return p.spec.Name }

// Start launches the command. stdout and stderr receive the child's output;
// exec copies it from pipes so writes happen on exec's goroutines.
func (p *Process) Start(stdout, stderr io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyStarted
	}
	cmd := p.spec.BuildCommand()
	cmd.Dir = p.spec.WorkDir
	if len(p.spec.Env) > 0 {
		cmd.Env = p.spec.Env
	}
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = p.spec.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.spec.Name, err)
	}
	p.cmd = cmd
	p.startedAt = time.Now()
	p.done = make(chan struct{})
	return nil
}

// PID returns the process id, 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Wait blocks until the process exited and all of its output was copied.
// It must be called exactly once after a successful Start.
func (p *Process) Wait() Exit {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()
	if cmd == nil {
		return ErrorExit(ErrNotStarted)
	}

	err := cmd.Wait()
	ex := classify(cmd, err)

	p.mu.Lock()
	p.exit = ex
	p.mu.Unlock()
	close(done)
	return ex
}

// Done is closed once Wait returned.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Terminate asks the process group to stop gracefully.
func (p *Process) Terminate() error { return p.signal(false) }

// Kill forcibly stops the process group.
func (p *Process) Kill() error { return p.signal(true) }

func (p *Process) signal(force bool) error {
	pid := p.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	select {
	case <-p.Done():
		return nil
	default:
	}
	return signalGroup(pid, force)
}

func classify(cmd *exec.Cmd, err error) Exit {
	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr), errors.Is(err, exec.ErrWaitDelay):
		if cmd.ProcessState == nil {
			return ErrorExit(err)
		}
		return exitFromState(cmd.ProcessState)
	default:
		return ErrorExit(err)
	}
}
