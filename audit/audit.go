// Package audit defines the lifecycle journal: an append-only record of every
// mutation applied to the certificate store and the proxy configuration.
package audit

import (
	"context"
	"time"

	"github.com/jmcleod/sslinker/internal/uuid"
)

// Action identifies a lifecycle mutation.
type Action string

const (
	ActionCAInitialized   Action = "ca_initialized"
	ActionCertIssued      Action = "cert_issued"
	ActionCertUploaded    Action = "cert_uploaded"
	ActionCertDeleted     Action = "cert_deleted"
	ActionStoreCleared    Action = "store_cleared"
	ActionProxyConfigured Action = "proxy_configured"
	ActionProxyRemoved    Action = "proxy_removed"
	ActionProxyControlled Action = "proxy_controlled"
	ActionLocalAddrSet    Action = "local_addr_set"
)

// Outcome is the result of a recorded action.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Event is one journal entry.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Action  Action    `json:"action"`
	Subject string    `json:"subject"`
	Outcome Outcome   `json:"outcome"`
	Message string    `json:"message,omitempty"`
}

// NewEvent returns an Event stamped with a fresh ID and the current time.
func NewEvent(action Action, subject string, outcome Outcome, message string) Event {
	return Event{
		ID:      uuid.New(),
		Time:    time.Now().UTC(),
		Action:  action,
		Subject: subject,
		Outcome: outcome,
		Message: message,
	}
}

// Store persists journal events.
type Store interface {
	// Append records ev.
	Append(ctx context.Context, ev Event) error

	// List returns up to limit events, newest first. A limit <= 0 returns
	// every event.
	List(ctx context.Context, limit int) ([]Event, error)

	Close() error
}

// Discard is a Store that drops every event.
var Discard Store = discard{}

type discard struct{}

func (discard) Append(context.Context, Event) error        { return nil }
func (discard) List(context.Context, int) ([]Event, error) { return nil, nil }
func (discard) Close() error                               { return nil }
