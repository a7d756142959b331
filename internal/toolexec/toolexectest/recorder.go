// Package toolexectest provides a scriptable toolexec.Runner for tests.
package toolexectest

import (
	"context"
	"strings"
	"sync"

	"github.com/jmcleod/sslinker/internal/toolexec"
)

// Call is one recorded invocation.
type Call struct {
	Tool string
	Args []string
}

// String renders the call as a shell-like command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Tool + " " + strings.Join(c.Args, " "))
}

// Response scripts the outcome of a matching invocation.
type Response struct {
	Output   string
	ExitCode int
	TimedOut bool
	// Hook runs before the response is returned, e.g. to create files the
	// real tool would have written.
	Hook func(args []string)
}

// Recorder records invocations and answers them from scripted responses.
// Responses are keyed by a prefix of the command line; the longest matching
// prefix wins. Unmatched calls succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Response
}

var _ toolexec.Runner = (*Recorder)(nil)

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{responses: make(map[string]Response)}
}

// On scripts the response for every command line starting with prefix.
func (r *Recorder) On(prefix string, resp Response) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = resp
	return r
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *Recorder) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Tool: name, Args: append([]string(nil), args...)}
	line := call.String()

	r.mu.Lock()
	r.calls = append(r.calls, call)
	var (
		resp    Response
		matched string
	)
	for prefix, candidate := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(matched) {
			resp, matched = candidate, prefix
		}
	}
	r.mu.Unlock()

	if resp.Hook != nil {
		resp.Hook(args)
	}
	out := []byte(resp.Output)
	if resp.TimedOut {
		return out, &toolexec.Error{Tool: name, Args: args, ExitCode: -1, TimedOut: true, Err: context.DeadlineExceeded}
	}
	if resp.ExitCode != 0 {
		return out, &toolexec.Error{Tool: name, Args: args, ExitCode: resp.ExitCode, Output: resp.Output}
	}
	return out, nil
}
