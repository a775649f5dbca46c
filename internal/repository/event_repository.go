package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/reelkeep/reelkeep/internal/models"
)

// EventRepository is the sqlite-backed implementation of eventbus.Store:
// an append-only log carrying an arbitrary JSON payload per event type.
// aggregate_type/aggregate_id are left at their schema defaults since
// models.DomainEvent doesn't expose an aggregate identity uniformly across
// every concrete event — callers needing aggregate-scoped queries should
// filter by event_type and decode the payload instead.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append serializes event as JSON and appends it to the events table,
// satisfying eventbus.Store.
func (r *EventRepository) Append(event models.DomainEvent) (int64, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, err
	}
	result, err := r.db.Exec(`
		INSERT INTO events (event_type, payload) VALUES (?, ?)`,
		event.EventType(), string(payload))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// storedEvent is a row from the durable append-log, for replay/inspection
// tooling rather than dispatch.
type storedEvent struct {
	ID        int64
	EventType models.EventType
	Payload   string
	CreatedAt string
}

// ListByType returns raw stored events for a given event type, most recent
// first, for diagnostics; no API route exposes it.
func (r *EventRepository) ListByType(eventType models.EventType, limit int) ([]storedEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, event_type, payload, created_at FROM events
		WHERE event_type = ? ORDER BY id DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedEvent
	for rows.Next() {
		var e storedEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
