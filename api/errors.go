package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jmcleod/sslinker/internal/toolexec"
	"github.com/jmcleod/sslinker/pki"
	"github.com/jmcleod/sslinker/proxy"
	"github.com/jmcleod/sslinker/storage"
)

const maxJSONBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps a lifecycle error to an HTTP status. Tool failures,
// including proxy reloads, are reported as a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, proxy.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, storage.ErrInvalidFileType),
		errors.Is(err, storage.ErrInvalidKind),
		errors.Is(err, pki.ErrInvalidIP),
		errors.Is(err, pki.ErrReservedName),
		errors.Is(err, proxy.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, pki.ErrCAMissing):
		return http.StatusConflict
	case errors.Is(err, toolexec.ErrInvocation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body of at most limit bytes into a T. Unknown
// fields are rejected.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, errors.New("request body is empty")
		}
		return v, fmt.Errorf("invalid request body: %w", err)
	}
	return v, nil
}
