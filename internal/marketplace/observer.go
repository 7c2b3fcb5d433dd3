package marketplace

import (
	"context"
	"time"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/models"
)

type EventType string

const (
	EventRequestCreated      EventType = "request.created"
	EventRequestAccepted     EventType = "request.accepted"
	EventRequestRejected     EventType = "request.rejected"
	EventRequestCompleted    EventType = "request.completed"
	EventMaterialTransferred EventType = "material.transferred"
)

func eventForStatus(s models.RequestStatus) EventType {
	switch s {
	case models.RequestAccepted:
		return EventRequestAccepted
	case models.RequestRejected:
		return EventRequestRejected
	case models.RequestCompleted:
		return EventRequestCompleted
	}
	return EventRequestCreated
}

// RequestEvent is a committed fact. Request is nil for material-only events.
type RequestEvent struct {
	Type     EventType        `json:"type"`
	Request  *models.Request  `json:"request,omitempty"`
	Material *models.Material `json:"material"`
	ActorID  string           `json:"actorID"`
	At       time.Time        `json:"at"`
}

// Observer is called after a unit of work has committed. Observers must not
// assume they can veto anything; errors are only logged.
type Observer interface {
	Name() string
	Observe(ctx context.Context, ev RequestEvent) error
}

type ObserverFunc func(ctx context.Context, ev RequestEvent) error

func (f ObserverFunc) Name() string                                     { return "func" }
func (f ObserverFunc) Observe(ctx context.Context, ev RequestEvent) error { return f(ctx, ev) }

// LogObserver writes every event to the service log.
type LogObserver struct {
	Log *logger.Logger
}

func (o LogObserver) Name() string { return "log" }

func (o LogObserver) Observe(_ context.Context, ev RequestEvent) error {
	kv := []interface{}{"event", ev.Type, "actor_id", ev.ActorID}
	if ev.Material != nil {
		kv = append(kv, "material_id", ev.Material.ID, "material_status", ev.Material.Status, "remaining", ev.Material.Remaining().String())
	}
	if ev.Request != nil {
		kv = append(kv, "request_id", ev.Request.ID, "quantity", ev.Request.Quantity.String())
	}
	o.Log.Info("marketplace event", kv...)
	return nil
}
