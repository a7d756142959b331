// Package toolexec runs external command-line tools (openssl, nginx, service
// managers) with a bounded wait. A tool that exits non-zero, cannot be
// started, or outlives its timeout is reported as an *Error carrying the
// captured output.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a single tool invocation when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// ErrInvocation matches every *Error via errors.Is.
var ErrInvocation = errors.New("external tool invocation failed")

// Runner executes a named tool and returns its combined stdout/stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Error describes a failed tool invocation.
type Error struct {
	Tool     string
	Args     []string
	ExitCode int
	Output   string
	TimedOut bool
	Err      error
}

func (e *Error) Error() string {
	cmd := strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s: timed out", cmd)
	case e.Output != "":
		return fmt.Sprintf("%s: exit status %d: %s", cmd, e.ExitCode, strings.TrimSpace(e.Output))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", cmd, e.Err)
	default:
		return fmt.Sprintf("%s: exit status %d", cmd, e.ExitCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvocation }

// Observer is notified after every invocation. It is used for metrics.
type Observer func(tool string, elapsed time.Duration, err error)

// ExecRunner runs tools as child processes.
//
// The child is not bound to the caller's context: when the timeout elapses or
// ctx is cancelled the caller stops waiting and receives a timeout error, but
// the process keeps running until it exits on its own and is then reaped.
type ExecRunner struct {
	Timeout  time.Duration
	Observer Observer

	wg sync.WaitGroup
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns an ExecRunner with the given timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	start := time.Now()
	out, err := r.run(ctx, name, args...)
	if r.Observer != nil {
		r.Observer(name, time.Since(start), err)
	}
	return out, err
}

func (r *ExecRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var buf lockedBuffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Start(); err != nil {
		return nil, &Error{Tool: name, Args: args, ExitCode: -1, Err: err}
	}

	done := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		out := buf.Bytes()
		if err == nil {
			return out, nil
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return out, &Error{Tool: name, Args: args, ExitCode: code, Output: string(out), Err: err}
	case <-timer.C:
		return buf.Bytes(), &Error{Tool: name, Args: args, ExitCode: -1, Output: string(buf.Bytes()), TimedOut: true, Err: context.DeadlineExceeded}
	case <-ctx.Done():
		return buf.Bytes(), &Error{Tool: name, Args: args, ExitCode: -1, Output: string(buf.Bytes()), TimedOut: true, Err: ctx.Err()}
	}
}

// Wait blocks until every child process started by r has exited.
func (r *ExecRunner) Wait() {
	r.wg.Wait()
}

// lockedBuffer lets the caller read partial output while the child may still
// be writing after a timeout.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
