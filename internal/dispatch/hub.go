// Package dispatch is the process-wide publish/subscribe hub. Events are
// best-effort: a client that is not connected simply misses them.
package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/observability"
)

// Event names pushed over the wire.
const (
	EventNewBloodRequest = "new_blood_request"
	EventNotification    = "notification"
	EventNewAssignment   = "new_assignment"
)

// ErrNotInitialized is returned by any publish attempted before Initialize
// wired a transport in. It exists so the failure is a testable state, not a
// nil-pointer crash.
var ErrNotInitialized = errors.New("dispatch: hub not initialized")

// Identity is the per-connection snapshot broadcast predicates run against.
type Identity struct {
	AccountID  string
	Role       models.Role
	BloodGroup models.BloodGroup
	Available  bool
	Location   models.Point
}

// Transport delivers raw frames to connected clients.
type Transport interface {
	// Send pushes to one account's channel; false means not connected or
	// the client's buffer was full and the frame was dropped.
	Send(accountID string, data []byte) bool
	// Identities snapshots every connected client.
	Identities() []Identity
}

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Dispatcher is constructed once at startup and passed by reference to every
// component that publishes. Publishes never block the caller.
type Dispatcher struct {
	mu        sync.RWMutex
	transport Transport
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Initialize wires the transport in. Calling it twice is a programming error.
func (d *Dispatcher) Initialize(t Transport) error {
	if t == nil {
		return errors.New("dispatch: nil transport")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transport != nil {
		return errors.New("dispatch: already initialized")
	}
	d.transport = t
	return nil
}

func (d *Dispatcher) IsInitialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.transport != nil
}

// NotifyAccount pushes one event to a single account, silently dropping it
// if the account has no live connection.
func (d *Dispatcher) NotifyAccount(accountID, event string, payload interface{}) error {
	t, err := d.current()
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	if t.Send(accountID, data) {
		observability.NotificationsSent.Inc()
	} else {
		observability.NotificationsDropped.Inc()
		d.logger.Debug("notification dropped", "account_id", accountID, "event", event)
	}
	return nil
}

// BroadcastToEligible pushes to every connected client whose identity
// satisfies the predicate.
func (d *Dispatcher) BroadcastToEligible(event string, payload interface{}, eligible func(Identity) bool) error {
	t, err := d.current()
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	for _, id := range t.Identities() {
		if !eligible(id) {
			continue
		}
		if t.Send(id.AccountID, data) {
			observability.NotificationsSent.Inc()
		} else {
			observability.NotificationsDropped.Inc()
		}
	}
	return nil
}

func (d *Dispatcher) current() (Transport, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.transport == nil {
		return nil, ErrNotInitialized
	}
	return d.transport, nil
}
