package toolexec_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/sslinker/internal/toolexec"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	r := toolexec.NewExecRunner(5 * time.Second)

	out, err := r.Run(t.Context(), "sh", "-c", "echo hello; echo oops 1>&2")
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello")
	assert.Contains(t, string(out), "oops")
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	requireShell(t)
	r := toolexec.NewExecRunner(5 * time.Second)

	out, err := r.Run(t.Context(), "sh", "-c", "echo broken config; exit 3")
	require.Error(t, err)
	assert.ErrorIs(t, err, toolexec.ErrInvocation)

	var toolErr *toolexec.Error
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.False(t, toolErr.TimedOut)
	assert.Contains(t, toolErr.Output, "broken config")
	assert.Contains(t, string(out), "broken config")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := toolexec.NewExecRunner(50 * time.Millisecond)

	start := time.Now()
	_, err := r.Run(t.Context(), "sh", "-c", "sleep 1")
	elapsed := time.Since(start)

	var toolErr *toolexec.Error
	require.True(t, errors.As(err, &toolErr))
	assert.True(t, toolErr.TimedOut)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)

	// The child is left to finish on its own.
	r.Wait()
}

func TestExecRunner_CallerCancel(t *testing.T) {
	requireShell(t)
	r := toolexec.NewExecRunner(5 * time.Second)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := r.Run(ctx, "sh", "-c", "sleep 0.2")

	var toolErr *toolexec.Error
	require.True(t, errors.As(err, &toolErr))
	assert.True(t, toolErr.TimedOut)
	r.Wait()
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := toolexec.NewExecRunner(time.Second)

	_, err := r.Run(t.Context(), "definitely-not-a-real-tool-sslinker")
	require.Error(t, err)
	assert.ErrorIs(t, err, toolexec.ErrInvocation)
}

func TestExecRunner_Observer(t *testing.T) {
	requireShell(t)
	r := toolexec.NewExecRunner(5 * time.Second)

	var seen []string
	r.Observer = func(tool string, _ time.Duration, err error) {
		if err != nil {
			seen = append(seen, tool+":err")
			return
		}
		seen = append(seen, tool+":ok")
	}

	_, _ = r.Run(t.Context(), "sh", "-c", "true")
	_, _ = r.Run(t.Context(), "sh", "-c", "false")
	assert.Equal(t, []string{"sh:ok", "sh:err"}, seen)
}
