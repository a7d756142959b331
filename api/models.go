package api

import (
	"github.com/jmcleod/sslinker/audit"
	"github.com/jmcleod/sslinker/lifecycle"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CAResponse is returned by POST /cert/ca.
type CAResponse struct {
	Success  bool   `json:"success"`
	CertPath string `json:"ca_cert_path"`
	KeyPath  string `json:"ca_key_path"`
	Existed  bool   `json:"existed"`
	Message  string `json:"message"`
}

// IssueResponse is returned by POST /cert/domain.
type IssueResponse struct {
	Success  bool          `json:"success"`
	CertPath string        `json:"cert_path"`
	KeyPath  string        `json:"key_path"`
	SANs     []string      `json:"sans"`
	Proxy    *proxy.Result `json:"proxy,omitempty"`
	Message  string        `json:"message"`
}

// ListCertsResponse is returned by GET /cert/list.
type ListCertsResponse struct {
	Certs []storage.Certificate `json:"certs"`
}

// UploadResponse is returned by POST /cert/upload.
type UploadResponse struct {
	Success     bool                 `json:"success"`
	Certificate *storage.Certificate `json:"certificate,omitempty"`
	Message     string               `json:"message"`
}

// ClearResponse is returned by DELETE /cert/clear.
type ClearResponse struct {
	Success bool     `json:"success"`
	Removed []string `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
	Message string   `json:"message"`
}

// ProxyConfigRequest is the body of POST /nginx/config.
type ProxyConfigRequest struct {
	CertDomain string `json:"cert_domain"`
	ServerName string `json:"server_name"`
	ProxyPass  string `json:"proxy_pass"`
}

// ProxyResponse is returned by the virtual host and proxy control routes.
type ProxyResponse struct {
	Success    bool   `json:"success"`
	ConfigPath string `json:"config_path,omitempty"`
	Message    string `json:"message"`
}

// ListConfigsResponse is returned by GET /nginx/list.
type ListConfigsResponse struct {
	Configs   []proxy.VirtualHost `json:"configs"`
	LocalAddr string              `json:"local_addr"`
}

// LocalAddrRequest is the body of POST /nginx/local_addr.
type LocalAddrRequest struct {
	LocalAddr string `json:"local_addr"`
}

// LocalAddrResponse is returned by the local address routes.
type LocalAddrResponse struct {
	Success   bool   `json:"success,omitempty"`
	LocalAddr string `json:"local_addr"`
}

// StatusResponse is returned by GET /nginx/status.
type StatusResponse struct {
	Status proxy.State `json:"status"`
}

// HostsResponse is returned by GET /nginx/hosts.
type HostsResponse struct {
	LocalAddr string   `json:"local_addr"`
	Lines     []string `json:"lines"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []audit.Event `json:"events"`
	PaginationMeta
}

func newIssueResponse(res *lifecycle.IssueResult, err error) IssueResponse {
	return IssueResponse{
		Success:  err == nil,
		CertPath: res.Leaf.CertPath,
		KeyPath:  res.Leaf.KeyPath,
		SANs:     res.Leaf.SANStrings(),
		Proxy:    res.Proxy,
		Message:  res.Message,
	}
}
