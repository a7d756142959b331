package proxy

import (
	"context"
	"errors"
	"strings"

	"github.com/jmcleod/sslinker/internal/toolexec"
)

// Tool controls the reverse-proxy process. Each method returns the tool's
// combined output; on failure the error is a *toolexec.Error carrying that
// output verbatim.
type Tool interface {
	Reload(ctx context.Context) (string, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
}

// Nginx implements Tool with the nginx binary.
type Nginx struct {
	runner toolexec.Runner
	bin    string
}

var _ Tool = (*Nginx)(nil)

// NewNginx returns an nginx Tool. An empty bin means "nginx" on PATH.
func NewNginx(runner toolexec.Runner, bin string) *Nginx {
	if bin == "" {
		bin = "nginx"
	}
	return &Nginx{runner: runner, bin: bin}
}

func (n *Nginx) Reload(ctx context.Context) (string, error) {
	return n.run(ctx, "-s", "reload")
}

func (n *Nginx) Start(ctx context.Context) (string, error) {
	return n.run(ctx)
}

func (n *Nginx) Stop(ctx context.Context) (string, error) {
	return n.run(ctx, "-s", "stop")
}

func (n *Nginx) run(ctx context.Context, args ...string) (string, error) {
	out, err := n.runner.Run(ctx, n.bin, args...)
	return string(out), err
}

// State is the observed state of the proxy service.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Probe asks one service manager for the proxy state. ok is false when the
// probe cannot give a confident answer and the next probe should be tried.
type Probe interface {
	Name() string
	Probe(ctx context.Context) (state State, ok bool)
}

// SystemctlProbe runs `systemctl is-active <unit>`.
type SystemctlProbe struct {
	Runner toolexec.Runner
	Bin    string
	Unit   string
}

func (p *SystemctlProbe) Name() string { return "systemctl" }

func (p *SystemctlProbe) Probe(ctx context.Context) (State, bool) {
	out, err := p.Runner.Run(ctx, orDefault(p.Bin, "systemctl"), "is-active", orDefault(p.Unit, "nginx"))
	if notStarted(err) {
		return StateError, false
	}
	// is-active exits non-zero for every state but "active", so the output
	// decides regardless of err.
	switch strings.TrimSpace(string(out)) {
	case "active":
		return StateRunning, true
	case "inactive":
		return StateStopped, true
	}
	return StateError, false
}

// ServiceProbe runs `service <unit> status`.
type ServiceProbe struct {
	Runner toolexec.Runner
	Bin    string
	Unit   string
}

func (p *ServiceProbe) Name() string { return "service" }

func (p *ServiceProbe) Probe(ctx context.Context) (State, bool) {
	out, err := p.Runner.Run(ctx, orDefault(p.Bin, "service"), orDefault(p.Unit, "nginx"), "status")
	if notStarted(err) {
		return StateError, false
	}
	text := strings.TrimSpace(string(out))
	switch {
	case strings.Contains(text, "not running"), strings.Contains(text, "is not"):
		return StateStopped, true
	case strings.Contains(text, "running"):
		return StateRunning, true
	case strings.Contains(text, "not"):
		return StateStopped, true
	}
	return StateError, false
}

// DefaultProbes returns the systemctl probe followed by the service probe.
func DefaultProbes(runner toolexec.Runner, systemctl, service, unit string) []Probe {
	return []Probe{
		&SystemctlProbe{Runner: runner, Bin: systemctl, Unit: unit},
		&ServiceProbe{Runner: runner, Bin: service, Unit: unit},
	}
}

// notStarted reports whether the tool could not be executed at all or
// timed out, as opposed to having run and exited non-zero.
func notStarted(err error) bool {
	if err == nil {
		return false
	}
	var execErr *toolexec.Error
	if !errors.As(err, &execErr) {
		return true
	}
	return execErr.TimedOut || (execErr.ExitCode < 0 && execErr.Output == "")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
