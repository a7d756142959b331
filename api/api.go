// Package api exposes the certificate and reverse-proxy lifecycle over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/sslinker/lifecycle"
)

// DefaultMaxUploadBytes caps multipart certificate uploads.
const DefaultMaxUploadBytes = 10 << 20

// API holds the dependencies needed by the REST handlers.
type API struct {
	svc       *lifecycle.Service
	audit     *auditLogger
	maxUpload int64
	mountPath string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithMaxUploadBytes caps the size of a certificate upload request.
func WithMaxUploadBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxUpload = n
		}
	}
}

// WithMountPath sets the prefix the router is mounted under, used to build
// the documentation links. Defaults to "/api".
func WithMountPath(p string) Option {
	return func(a *API) {
		a.mountPath = p
	}
}

// New creates a new API instance.
func New(svc *lifecycle.Service, opts ...Option) *API {
	a := &API{
		svc:       svc,
		maxUpload: DefaultMaxUploadBytes,
		mountPath: "/api",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: a.mountPath + "/openapi.yaml",
		Path:    trimSlash(a.mountPath + "/docs"),
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: a.mountPath + "/openapi.yaml",
		Path:    trimSlash(a.mountPath + "/redoc"),
	}, nil))

	r.Route("/cert", func(r chi.Router) {
		r.Post("/ca", a.InitCA)
		r.Post("/domain", a.IssueCert)
		r.Get("/list", a.ListCerts)
		r.Get("/download", a.DownloadCert)
		r.Delete("/delete", a.DeleteCert)
		r.Delete("/clear", a.ClearCerts)
		r.Post("/upload", a.UploadCert)
	})

	r.Route("/nginx", func(r chi.Router) {
		r.Post("/config", a.ConfigureProxy)
		r.Delete("/config", a.RemoveProxyConfig)
		r.Get("/list", a.ListProxyConfigs)
		r.Get("/local_addr", a.GetLocalAddr)
		r.Post("/local_addr", a.SetLocalAddr)
		r.Post("/start", a.StartProxy)
		r.Post("/stop", a.StopProxy)
		r.Post("/reload", a.ReloadProxy)
		r.Get("/status", a.ProxyStatus)
		r.Get("/hosts", a.Hosts)
	})

	r.Get("/events", a.ListEvents)

	return r
}

// trimSlash strips the leading slash go-openapi's UI middleware does not
// expect in its base path.
func trimSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
