package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/repository"
)

// Result reports what one processed envelope did to the store.
type Result struct {
	Event      model.Event
	Recipients []model.Recipient
	Inserted   []model.InboxEntry // may be fewer than Recipients on redelivery
	Created    bool
}

// NewRows is the observability count of freshly materialized inbox rows.
func (r Result) NewRows() int { return len(r.Inserted) }

// Service runs the per-message pipeline: canonical event upsert, recipient
// resolution, inbox fan-out. All of it commits or rolls back as one local
// transaction so a crash can never leave a stored event without its fan-out.
type Service struct {
	db     *sqlx.DB
	events repository.EventsRepository
	inbox  repository.InboxRepository
}

func New(db *sqlx.DB, eventsRepo repository.EventsRepository, inboxRepo repository.InboxRepository) *Service {
	return &Service{
		db:     db,
		events: eventsRepo,
		inbox:  inboxRepo,
	}
}

// Process handles one validated envelope. Redelivery of an already-processed
// eventId commits a transaction that changes nothing and reports NewRows=0.
func (s *Service) Process(ctx context.Context, env model.Envelope, now time.Time) (Result, error) {
	var res Result

	// READ COMMITTED lets the reread after a lost insert race observe the
	// winner's committed row.
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback() }()

	ev, created, err := s.events.GetOrCreate(ctx, tx, env)
	if err != nil {
		return Result{}, fmt.Errorf("store event %s: %w", env.EventID, err)
	}

	recipients := Resolve(env)

	var inserted []model.InboxEntry
	if len(recipients) > 0 {
		inserted, err = s.inbox.Deliver(ctx, tx, ev.ID, recipients, now)
		if err != nil {
			return Result{}, fmt.Errorf("fan out event %s: %w", env.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	res = Result{
		Event:      ev,
		Recipients: recipients,
		Inserted:   inserted,
		Created:    created,
	}
	return res, nil
}
