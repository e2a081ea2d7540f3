package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/mariks1/unipeople-notify/internal/model"
)

// CHDeliveriesRepository mirrors fan-out deliveries into ClickHouse for the
// admin reports endpoint.
type CHDeliveriesRepository interface {
	InsertBatch(ctx context.Context, rows []model.DeliveryReport) error
	List(ctx context.Context, source, eventType string, limit, offset int) ([]model.DeliveryReport, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) CHDeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) InsertBatch(ctx context.Context, rows []model.DeliveryReport) error {
	if len(rows) == 0 {
		return nil
	}
	const q = `
		INSERT INTO unotify.deliveries
		    (inbox_id, event_id, source, event_type, recipient_employee_id, recipient_role, delivered_at)
		VALUES
		    (:inbox_id, :event_id, :source, :event_type, :recipient_employee_id, :recipient_role, :delivered_at)
	`
	_, err := r.ch.NamedExecContext(ctx, q, rows)
	return err
}

func (r *chDeliveriesRepository) List(ctx context.Context, source, eventType string, limit, offset int) ([]model.DeliveryReport, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT inbox_id, event_id, source, event_type, recipient_employee_id, recipient_role, delivered_at
		FROM unotify.deliveries
		WHERE 1 = 1
	`
	args := []any{}

	if source != "" {
		q += " AND source = ?"
		args = append(args, source)
	}
	if eventType != "" {
		q += " AND event_type = ?"
		args = append(args, eventType)
	}

	q += " ORDER BY delivered_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.DeliveryReport
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
