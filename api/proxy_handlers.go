package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/sslinker/proxy"
)

// ConfigureProxy handles POST /nginx/config.
func (a *API) ConfigureProxy(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[ProxyConfigRequest](w, r, maxJSONBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := proxy.Params{
		ServerName: strings.TrimSpace(req.ServerName),
		CertDomain: strings.TrimSpace(req.CertDomain),
		ProxyPass:  strings.TrimSpace(req.ProxyPass),
	}

	res, err := a.svc.Configure(r.Context(), params)
	if res == nil {
		a.audit.logFailure(AuditProxyConfigured, r, params.ServerName, err)
		mapError(w, err)
		return
	}
	status := http.StatusCreated
	if err != nil {
		status = statusFor(err)
		a.audit.logFailure(AuditProxyConfigured, r, params.ServerName, err)
	} else {
		a.audit.logEvent(AuditProxyConfigured, r, params.ServerName,
			slog.String("cert_domain", params.CertDomain),
			slog.String("proxy_pass", params.ProxyPass))
	}
	writeJSON(w, status, ProxyResponse{
		Success:    err == nil,
		ConfigPath: res.Path,
		Message:    res.Message,
	})
}

// RemoveProxyConfig handles DELETE /nginx/config?domain=.
func (a *API) RemoveProxyConfig(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("domain")
	res, err := a.svc.RemoveConfig(r.Context(), name)
	if res == nil {
		a.audit.logFailure(AuditProxyRemoved, r, name, err)
		mapError(w, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		a.audit.logFailure(AuditProxyRemoved, r, name, err)
	} else {
		a.audit.logEvent(AuditProxyRemoved, r, name)
	}
	writeJSON(w, status, ProxyResponse{
		Success:    err == nil,
		ConfigPath: res.Path,
		Message:    res.Message,
	})
}

// ListProxyConfigs handles GET /nginx/list.
func (a *API) ListProxyConfigs(w http.ResponseWriter, r *http.Request) {
	hosts, err := a.svc.VirtualHosts()
	if err != nil {
		mapError(w, err)
		return
	}
	addr, err := a.svc.LocalAddress()
	if err != nil {
		mapError(w, err)
		return
	}
	if hosts == nil {
		hosts = []proxy.VirtualHost{}
	}
	writeJSON(w, http.StatusOK, ListConfigsResponse{Configs: hosts, LocalAddr: addr})
}

// GetLocalAddr handles GET /nginx/local_addr.
func (a *API) GetLocalAddr(w http.ResponseWriter, r *http.Request) {
	addr, err := a.svc.LocalAddress()
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LocalAddrResponse{LocalAddr: addr})
}

// SetLocalAddr handles POST /nginx/local_addr.
func (a *API) SetLocalAddr(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[LocalAddrRequest](w, r, maxJSONBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := a.svc.SetLocalAddress(r.Context(), req.LocalAddr)
	if err != nil {
		a.audit.logFailure(AuditLocalAddrSet, r, req.LocalAddr, err)
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditLocalAddrSet, r, stored)
	writeJSON(w, http.StatusOK, LocalAddrResponse{Success: true, LocalAddr: stored})
}

// StartProxy handles POST /nginx/start.
func (a *API) StartProxy(w http.ResponseWriter, r *http.Request) {
	a.controlProxy(w, r, "start", a.svc.StartProxy)
}

// StopProxy handles POST /nginx/stop.
func (a *API) StopProxy(w http.ResponseWriter, r *http.Request) {
	a.controlProxy(w, r, "stop", a.svc.StopProxy)
}

// ReloadProxy handles POST /nginx/reload.
func (a *API) ReloadProxy(w http.ResponseWriter, r *http.Request) {
	a.controlProxy(w, r, "reload", a.svc.ReloadProxy)
}

func (a *API) controlProxy(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context) (string, error)) {
	out, err := fn(r.Context())
	if err != nil {
		a.audit.logFailure(AuditProxyControlled, r, action, err)
		msg := out
		if msg == "" {
			msg = err.Error()
		}
		writeJSON(w, statusFor(err), ProxyResponse{Message: msg})
		return
	}
	a.audit.logEvent(AuditProxyControlled, r, action)
	writeJSON(w, http.StatusOK, ProxyResponse{Success: true, Message: out})
}

// ProxyStatus handles GET /nginx/status.
func (a *API) ProxyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: a.svc.ProxyStatus(r.Context())})
}

// Hosts handles GET /nginx/hosts.
func (a *API) Hosts(w http.ResponseWriter, r *http.Request) {
	addr, err := a.svc.LocalAddress()
	if err != nil {
		mapError(w, err)
		return
	}
	lines, err := a.svc.Hosts()
	if err != nil {
		mapError(w, err)
		return
	}
	if addr == "" {
		addr = proxy.DefaultLocalAddr
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, HostsResponse{LocalAddr: addr, Lines: lines})
}
