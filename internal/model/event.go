package model

import (
	"encoding/json"
	"time"
)

// Event is the canonical, deduplicated DB record of one domain event.
// Keyed by the producer-assigned event_id (UNIQUE); append-only, never
// updated or deleted.
type Event struct {
	ID        int64           `db:"id"`
	EventID   string          `db:"event_id"`
	Source    string          `db:"source"`
	EventType string          `db:"event_type"`
	EntityID  *string         `db:"entity_id"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
}
