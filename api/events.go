package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmcleod/sslinker/audit"
)

// ListEvents handles GET /events?limit=&offset=.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.svc.Events(r.Context(), 0)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		mapError(w, err)
		return
	}
	page, meta := paginate(r, events)
	if page == nil {
		page = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: page, PaginationMeta: meta})
}
