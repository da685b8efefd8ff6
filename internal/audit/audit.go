// internal/audit/audit.go
package audit

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Event describes one auditable action.
type Event struct {
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
}

// Sink accepts audit events. Recording is best-effort: implementations
// never return an error and must not block the caller's operation on their
// own failures.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Recorder appends audit events to an append-only table.
type Recorder struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewRecorder creates a database-backed audit sink.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db:     db,
		tracer: otel.Tracer("libracirc/audit"),
	}
}

// Record inserts the event. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, event Event) {
	ctx, span := r.tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("audit.action", event.Action),
			attribute.String("audit.entity_type", event.EntityType),
			attribute.String("audit.entity_id", event.EntityID.String()),
		),
	)
	defer span.End()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (actor_id, action, entity_type, entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ActorID, event.Action, event.EntityType, event.EntityID, time.Now().UTC())
	if err != nil {
		span.SetAttributes(attribute.Bool("audit.dropped", true))
		log.Printf("audit: dropped event %s for %s %s: %v", event.Action, event.EntityType, event.EntityID, err)
	}
}

// Discard is a no-op sink for wiring paths that have no audit storage.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}
