package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mariks1/unipeople-notify/internal/model"
)

// EventsRepository owns the canonical, deduplicated event log.
type EventsRepository interface {
	// GetOrCreate returns the stored event for the envelope's eventId,
	// inserting it first if absent. The bool reports whether this call
	// created the row. Safe under concurrent calls with the same eventId.
	GetOrCreate(ctx context.Context, tx *sqlx.Tx, env model.Envelope) (model.Event, bool, error)
}

type EventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewEventsRepository(db *sqlx.DB) *EventsRepositoryImpl {
	return &EventsRepositoryImpl{db: db}
}

var _ EventsRepository = (*EventsRepositoryImpl)(nil)

const selectEventByEventID = `
	SELECT id, event_id, source, event_type, entity_id, payload, created_at
	  FROM events
	 WHERE event_id = ? LIMIT 1
`

func (r *EventsRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	// READ COMMITTED: the reread after a duplicate-key conflict must see the
	// winner's committed row
	t, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *EventsRepositoryImpl) GetOrCreate(ctx context.Context, tx *sqlx.Tx, env model.Envelope) (model.Event, bool, error) {
	var ev model.Event
	var created bool

	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &ev, selectEventByEventID, env.EventID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("select event: %w", err)
		}

		payload := env.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}

		const q = `
			INSERT INTO events (event_id, source, event_type, entity_id, payload, created_at)
			VALUES (?, ?, ?, ?, ?, NOW(3))
		`
		_, err = tx.ExecContext(ctx, q, env.EventID, env.Source, env.EventType, env.EntityID, []byte(payload))
		switch {
		case err == nil:
			created = true
		case isDuplicateKey(err):
			// lost the insert race to a concurrent consumer; the winner's
			// row is the canonical one
			created = false
		default:
			return fmt.Errorf("insert event: %w", err)
		}

		if err := tx.GetContext(ctx, &ev, selectEventByEventID, env.EventID); err != nil {
			return fmt.Errorf("reread event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Event{}, false, err
	}
	return ev, created, nil
}
