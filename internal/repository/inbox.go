package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/util"
)

// InboxFilters narrows inbox listings. Zero values mean "no filter".
type InboxFilters struct {
	UnreadOnly bool
	Source     string
	EventType  string
	From       *time.Time
	To         *time.Time
}

// InboxRepository owns the per-recipient delivery rows. All mutations are
// conditional updates; the (event_id, recipient_employee_id, recipient_role)
// unique key makes Deliver idempotent.
type InboxRepository interface {
	Deliver(ctx context.Context, tx *sqlx.Tx, eventRef int64, recipients []model.Recipient, deliveredAt time.Time) ([]model.InboxEntry, error)
	ListForIdentity(ctx context.Context, id model.Identity, f InboxFilters, limit, offset int) ([]model.InboxRow, int64, error)
	ListForEmployee(ctx context.Context, employeeID string, f InboxFilters, limit, offset int) ([]model.InboxRow, int64, error)
	UnreadCountEmployee(ctx context.Context, employeeID string) (int64, error)
	UnreadCountRole(ctx context.Context, role string) (int64, error)
	MarkRead(ctx context.Context, inboxID string, caller model.Identity, isAdmin bool, now time.Time) (model.Recipient, int64, error)
	MarkAllRead(ctx context.Context, id model.Identity, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, inboxID string, caller model.Identity, isAdmin bool, now time.Time) (model.Recipient, int64, error)
}

type InboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewInboxRepository(db *sqlx.DB) *InboxRepositoryImpl {
	return &InboxRepositoryImpl{db: db}
}

var _ InboxRepository = (*InboxRepositoryImpl)(nil)

func (r *InboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// Deliver inserts one row per recipient. A duplicate-key conflict means the
// pair was already delivered on an earlier attempt and is skipped silently;
// only the newly inserted entries are returned, so redelivery legitimately
// yields fewer entries than recipients.
func (r *InboxRepositoryImpl) Deliver(ctx context.Context, tx *sqlx.Tx, eventRef int64, recipients []model.Recipient, deliveredAt time.Time) ([]model.InboxEntry, error) {
	const q = `
		INSERT INTO inbox_entries
		    (id, event_id, recipient_employee_id, recipient_role, delivered_at)
		VALUES
		    (?,  ?,        ?,                     ?,              ?)
	`
	inserted := make([]model.InboxEntry, 0, len(recipients))
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		for _, rec := range recipients {
			empID, role := rec.Columns()
			id := util.NewID()
			_, err := tx.ExecContext(ctx, q, id, eventRef, empID, role, deliveredAt)
			if err != nil {
				if isDuplicateKey(err) {
					continue // already delivered
				}
				return fmt.Errorf("insert inbox entry for %s: %w", rec, err)
			}
			inserted = append(inserted, model.InboxEntry{
				ID:                  id,
				EventRef:            eventRef,
				RecipientEmployeeID: empID,
				RecipientRole:       role,
				DeliveredAt:         deliveredAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// identityScope builds the ownership predicate for the caller: personal rows
// by employee id plus shared rows by any held role. col names are prefixed
// with alias when non-empty.
func identityScope(alias string, id model.Identity) (string, []any, error) {
	empCol := alias + "recipient_employee_id"
	roleCol := alias + "recipient_role"

	switch {
	case id.EmployeeID != "" && len(id.Roles) > 0:
		return sqlx.In("("+empCol+" = ? OR "+roleCol+" IN (?))", id.EmployeeID, id.Roles)
	case id.EmployeeID != "":
		return empCol + " = ?", []any{id.EmployeeID}, nil
	case len(id.Roles) > 0:
		return sqlx.In(roleCol+" IN (?)", id.Roles)
	default:
		return "", nil, fmt.Errorf("identity has neither employee id nor roles")
	}
}

const selectInboxColumns = `
	SELECT i.id, i.event_id, i.recipient_employee_id, i.recipient_role,
	       i.delivered_at, i.read_at, i.deleted_at,
	       e.event_id   AS evt_event_id,
	       e.created_at AS evt_created_at,
	       e.source     AS evt_source,
	       e.event_type AS evt_event_type,
	       e.entity_id  AS evt_entity_id,
	       e.payload    AS evt_payload
	  FROM inbox_entries i
	  JOIN events e ON e.id = i.event_id
`

func filterClauses(f InboxFilters) (clauses []string, args []any) {
	if f.UnreadOnly {
		clauses = append(clauses, "i.read_at IS NULL")
	}
	if f.Source != "" {
		clauses = append(clauses, "e.source = ?")
		args = append(args, f.Source)
	}
	if f.EventType != "" {
		clauses = append(clauses, "e.event_type = ?")
		args = append(args, f.EventType)
	}
	if f.From != nil {
		clauses = append(clauses, "i.delivered_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		clauses = append(clauses, "i.delivered_at <= ?")
		args = append(args, *f.To)
	}
	return clauses, args
}

func (r *InboxRepositoryImpl) list(ctx context.Context, scope string, scopeArgs []any, f InboxFilters, limit, offset int) ([]model.InboxRow, int64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	// soft-deleted rows are invisible to every listing
	clauses := []string{"i.deleted_at IS NULL", scope}
	args := append([]any{}, scopeArgs...)

	fc, fargs := filterClauses(f)
	clauses = append(clauses, fc...)
	args = append(args, fargs...)

	where := " WHERE " + strings.Join(clauses, " AND ")

	var total int64
	countQ := `SELECT COUNT(*) FROM inbox_entries i JOIN events e ON e.id = i.event_id` + where
	if err := r.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, fmt.Errorf("count inbox: %w", err)
	}

	q := selectInboxColumns + where + " ORDER BY i.delivered_at DESC, i.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.InboxRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list inbox: %w", err)
	}
	return rows, total, nil
}

func (r *InboxRepositoryImpl) ListForIdentity(ctx context.Context, id model.Identity, f InboxFilters, limit, offset int) ([]model.InboxRow, int64, error) {
	scope, args, err := identityScope("i.", id)
	if err != nil {
		return nil, 0, err
	}
	return r.list(ctx, scope, args, f, limit, offset)
}

func (r *InboxRepositoryImpl) ListForEmployee(ctx context.Context, employeeID string, f InboxFilters, limit, offset int) ([]model.InboxRow, int64, error) {
	return r.list(ctx, "i.recipient_employee_id = ?", []any{employeeID}, f, limit, offset)
}

func (r *InboxRepositoryImpl) UnreadCountEmployee(ctx context.Context, employeeID string) (int64, error) {
	const q = `
		SELECT COUNT(*) FROM inbox_entries
		 WHERE recipient_employee_id = ? AND read_at IS NULL AND deleted_at IS NULL
	`
	var n int64
	if err := r.db.GetContext(ctx, &n, q, employeeID); err != nil {
		return 0, fmt.Errorf("unread count employee: %w", err)
	}
	return n, nil
}

func (r *InboxRepositoryImpl) UnreadCountRole(ctx context.Context, role string) (int64, error) {
	const q = `
		SELECT COUNT(*) FROM inbox_entries
		 WHERE recipient_role = ? AND read_at IS NULL AND deleted_at IS NULL
	`
	var n int64
	if err := r.db.GetContext(ctx, &n, q, role); err != nil {
		return 0, fmt.Errorf("unread count role: %w", err)
	}
	return n, nil
}

// conditionalUpdate runs one guarded UPDATE on a single entry and reports the
// row's recipient, so callers can invalidate the counter of the recipient the
// row belongs to rather than the caller's — they differ when an admin acts on
// someone else's entry. Zero affected rows means absent, already in the target
// state, or not owned; callers map all three to not-found.
func (r *InboxRepositoryImpl) conditionalUpdate(ctx context.Context, setClause, guard string, setArg any, inboxID string, caller model.Identity, isAdmin bool) (model.Recipient, int64, error) {
	var target model.InboxEntry
	const recipientQ = `SELECT recipient_employee_id, recipient_role FROM inbox_entries WHERE id = ? LIMIT 1`
	if err := r.db.GetContext(ctx, &target, recipientQ, inboxID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Recipient{}, 0, nil
		}
		return model.Recipient{}, 0, err
	}
	rec, err := target.Recipient()
	if err != nil {
		return model.Recipient{}, 0, err
	}

	q := `UPDATE inbox_entries SET ` + setClause + ` WHERE id = ? AND ` + guard
	args := []any{setArg, inboxID}

	if !isAdmin {
		scope, scopeArgs, err := identityScope("", caller)
		if err != nil {
			return model.Recipient{}, 0, err
		}
		q += " AND " + scope
		args = append(args, scopeArgs...)
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return model.Recipient{}, 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Recipient{}, 0, err
	}
	return rec, n, nil
}

func (r *InboxRepositoryImpl) MarkRead(ctx context.Context, inboxID string, caller model.Identity, isAdmin bool, now time.Time) (model.Recipient, int64, error) {
	return r.conditionalUpdate(ctx, "read_at = ?", "read_at IS NULL AND deleted_at IS NULL", now, inboxID, caller, isAdmin)
}

// SoftDelete hides the entry from every listing; already-read entries may
// still be deleted.
func (r *InboxRepositoryImpl) SoftDelete(ctx context.Context, inboxID string, caller model.Identity, isAdmin bool, now time.Time) (model.Recipient, int64, error) {
	return r.conditionalUpdate(ctx, "deleted_at = ?", "deleted_at IS NULL", now, inboxID, caller, isAdmin)
}

// MarkAllRead applies the read transition across the caller's personal rows
// and, separately, all rows matching any held role. Either leg may touch
// zero rows.
func (r *InboxRepositoryImpl) MarkAllRead(ctx context.Context, id model.Identity, now time.Time) (int64, error) {
	var affected int64

	if id.EmployeeID != "" {
		const q = `
			UPDATE inbox_entries SET read_at = ?
			 WHERE recipient_employee_id = ? AND read_at IS NULL AND deleted_at IS NULL
		`
		res, err := r.db.ExecContext(ctx, q, now, id.EmployeeID)
		if err != nil {
			return affected, fmt.Errorf("mark all read (personal): %w", err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if len(id.Roles) > 0 {
		q, args, err := sqlx.In(`
			UPDATE inbox_entries SET read_at = ?
			 WHERE recipient_role IN (?) AND read_at IS NULL AND deleted_at IS NULL
		`, now, id.Roles)
		if err != nil {
			return affected, err
		}
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return affected, fmt.Errorf("mark all read (roles): %w", err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	return affected, nil
}
