// Package proxy manages nginx virtual host files and the nginx process.
//
// A virtual host is one file <dir>/<name>.conf rendered from a template by an
// Engine. The Controller writes and removes these files and reloads nginx
// after every change. A reload failure is reported separately from the file
// mutation: the file change is kept and ErrReloadFailed is returned.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jmcleod/sslinker/storage"
)

const confExt = ".conf"

var (
	// ErrConfigNotFound is returned when no config file exists for a name.
	ErrConfigNotFound = errors.New("proxy config not found")

	// ErrReloadFailed is returned when a config change was applied on disk
	// but nginx could not be reloaded.
	ErrReloadFailed = errors.New("proxy reload failed")

	// ErrInvalidParams is returned when a render request lacks a value.
	ErrInvalidParams = errors.New("invalid proxy config parameters")
)

var upstreamPattern = regexp.MustCompile(`proxy_pass +([^;]+);`)

// VirtualHost is one config file in the proxy config directory.
type VirtualHost struct {
	Name string `json:"domain"`
	// Upstream is empty when the file has no proxy_pass directive.
	Upstream string `json:"proxy_pass"`
	Path     string `json:"config_path"`
}

// Result describes a config mutation.
type Result struct {
	Path string `json:"config_path"`
	// Persisted is true when the file exists on disk after the operation.
	Persisted bool `json:"persisted"`
	// Active is true when nginx was reloaded with the change.
	Active  bool   `json:"active"`
	Message string `json:"message"`
}

// Controller owns the proxy config directory and drives the proxy Tool.
type Controller struct {
	dir    string
	tool   Tool
	probes []Probe
	logger *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithProbes sets the status probes in priority order.
func WithProbes(probes ...Probe) ControllerOption {
	return func(c *Controller) {
		c.probes = probes
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger.With("component", "proxy")
	}
}

// NewController returns a Controller for the config files in dir.
func NewController(dir string, tool Tool, opts ...ControllerOption) *Controller {
	c := &Controller{
		dir:    dir,
		tool:   tool,
		logger: slog.Default().With("component", "proxy"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the config directory.
func (c *Controller) Dir() string { return c.dir }

// ConfigPath returns the file path for a virtual host name.
func (c *Controller) ConfigPath(name string) string {
	return filepath.Join(c.dir, name+confExt)
}

// WriteConfig writes rendered to <dir>/<name>.conf, replacing any existing
// file, then reloads nginx.
func (c *Controller) WriteConfig(ctx context.Context, name, rendered string) (*Result, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	path := c.ConfigPath(name)
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, &storage.StorageError{Op: "mkdir", Path: c.dir, Err: err}
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return nil, &storage.StorageError{Op: "write", Path: path, Err: err}
	}
	c.logger.Info("proxy config written", "name", name, "path", path)

	res := &Result{Path: path, Persisted: true}
	if out, err := c.tool.Reload(ctx); err != nil {
		res.Message = "config written, reload failed: " + toolOutput(out, err)
		c.logger.Error("proxy reload failed", "name", name, "error", err)
		return res, fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	res.Active = true
	res.Message = "config written and proxy reloaded"
	return res, nil
}

// List returns every virtual host in the config directory, sorted by name.
// Files that vanish while listing are skipped; unreadable files are listed
// without an upstream.
func (c *Controller) List() ([]VirtualHost, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []VirtualHost{}, nil
		}
		return nil, &storage.StorageError{Op: "list", Path: c.dir, Err: err}
	}

	hosts := make([]VirtualHost, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), confExt) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		vh := VirtualHost{Name: strings.TrimSuffix(entry.Name(), confExt), Path: path}
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			c.logger.Warn("unreadable proxy config", "path", path, "error", err)
		default:
			vh.Upstream = ExtractUpstream(string(data))
		}
		hosts = append(hosts, vh)
	}
	return hosts, nil
}

// ExtractUpstream returns the target of the first proxy_pass directive in a
// config, or "" when there is none.
func ExtractUpstream(config string) string {
	m := upstreamPattern.FindStringSubmatch(config)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Remove deletes <dir>/<name>.conf and reloads nginx.
func (c *Controller) Remove(ctx context.Context, name string) (*Result, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	path := c.ConfigPath(name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrConfigNotFound)
		}
		return nil, &storage.StorageError{Op: "delete", Path: path, Err: err}
	}
	c.logger.Info("proxy config removed", "name", name, "path", path)

	res := &Result{Path: path}
	if out, err := c.tool.Reload(ctx); err != nil {
		res.Message = "config removed, reload failed: " + toolOutput(out, err)
		c.logger.Error("proxy reload failed", "name", name, "error", err)
		return res, fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	res.Active = true
	res.Message = "config removed and proxy reloaded"
	return res, nil
}

// Reload asks nginx to reload its configuration.
func (c *Controller) Reload(ctx context.Context) (string, error) {
	out, err := c.tool.Reload(ctx)
	c.logAction("reload", err)
	return out, err
}

// Start launches nginx.
func (c *Controller) Start(ctx context.Context) (string, error) {
	out, err := c.tool.Start(ctx)
	c.logAction("start", err)
	return out, err
}

// Stop stops nginx.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	out, err := c.tool.Stop(ctx)
	c.logAction("stop", err)
	return out, err
}

// Status consults the probes in order and returns the first confident
// answer, or StateError when none is confident.
func (c *Controller) Status(ctx context.Context) State {
	for _, p := range c.probes {
		if state, ok := p.Probe(ctx); ok {
			c.logger.Debug("proxy status", "probe", p.Name(), "state", state)
			return state
		}
	}
	return StateError
}

func (c *Controller) logAction(action string, err error) {
	if err != nil {
		c.logger.Error("proxy "+action+" failed", "error", err)
		return
	}
	c.logger.Info("proxy " + action)
}

// toolOutput prefers the tool's own output over the error text.
func toolOutput(out string, err error) string {
	if s := strings.TrimSpace(out); s != "" {
		return s
	}
	return err.Error()
}
