package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/repository"
	"github.com/mariks1/unipeople-notify/internal/title"
)

// UnreadCounters is the unread-count cache surface this service depends on;
// *cache.UnreadCache satisfies it.
type UnreadCounters interface {
	GetEmployee(ctx context.Context, employeeID string) (int64, bool)
	SetEmployee(ctx context.Context, employeeID string, n int64)
	GetRole(ctx context.Context, role string) (int64, bool)
	SetRole(ctx context.Context, role string, n int64)
	Invalidate(ctx context.Context, recipients ...model.Recipient)
	InvalidateIdentity(ctx context.Context, id model.Identity)
}

var (
	// ErrForbidden: the identity carries neither an employee id nor a role,
	// or targets another employee without an admin role.
	ErrForbidden = errors.New("inbox: forbidden")
	// ErrNotFound: entry absent, already in the target state, or not owned.
	// The causes are deliberately indistinguishable.
	ErrNotFound = errors.New("inbox: entry not found")
)

// Filters re-exports the repository filter set for callers of this service.
type Filters = repository.InboxFilters

// EventView is the canonical event as shown inside an inbox item.
type EventView struct {
	EventID   string          `json:"eventId"`
	CreatedAt time.Time       `json:"createdAt"`
	Source    string          `json:"source"`
	EventType string          `json:"eventType"`
	EntityID  *string         `json:"entityId"`
	Title     string          `json:"title"`
	Payload   json.RawMessage `json:"payload"`
}

// Item is one inbox row as served over REST.
type Item struct {
	InboxID     string    `json:"inboxId"`
	Unread      bool      `json:"unread"`
	DeliveredAt time.Time `json:"deliveredAt"`
	Event       EventView `json:"event"`
}

// Page is one slice of an inbox listing.
type Page struct {
	Items  []Item `json:"items"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Service answers inbox reads and applies read/delete transitions. All
// concurrency discipline lives in the repository's conditional updates; this
// layer adds identity checks, title rendering and the unread-count cache.
type Service struct {
	inbox      repository.InboxRepository
	unread     UnreadCounters
	titles     *title.Registry
	adminRoles []string
}

func New(inboxRepo repository.InboxRepository, unread UnreadCounters, titles *title.Registry, adminRoles []string) *Service {
	return &Service{
		inbox:      inboxRepo,
		unread:     unread,
		titles:     titles,
		adminRoles: adminRoles,
	}
}

// IsAdmin reports whether the identity holds one of the configured elevated roles.
func (s *Service) IsAdmin(id model.Identity) bool {
	return id.HasAnyRole(s.adminRoles)
}

func (s *Service) toItem(row model.InboxRow) Item {
	return Item{
		InboxID:     row.InboxEntry.ID,
		Unread:      row.ReadAt == nil,
		DeliveredAt: row.DeliveredAt,
		Event: EventView{
			EventID:   row.EventID,
			CreatedAt: row.EventCreatedAt,
			Source:    row.Source,
			EventType: row.EventType,
			EntityID:  row.EntityID,
			Title:     s.titles.Format(row.EventType, row.Payload),
			Payload:   row.Payload,
		},
	}
}

func (s *Service) toPage(rows []model.InboxRow, total int64, limit, offset int) Page {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.toItem(row))
	}
	return Page{Items: items, Total: total, Limit: limit, Offset: offset}
}

// InboxForUser lists the caller's own inbox: personal rows plus rows shared
// with any of the caller's roles.
func (s *Service) InboxForUser(ctx context.Context, id model.Identity, f Filters, limit, offset int) (Page, error) {
	if id.Anonymous() {
		return Page{}, ErrForbidden
	}
	rows, total, err := s.inbox.ListForIdentity(ctx, id, f, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list inbox: %w", err)
	}
	return s.toPage(rows, total, limit, offset), nil
}

// UnreadCountForUser sums the caller's personal counter and one counter per
// held role. Personal and role rows are disjoint, so the sum is exact.
func (s *Service) UnreadCountForUser(ctx context.Context, id model.Identity) (int64, error) {
	if id.Anonymous() {
		return 0, ErrForbidden
	}

	var total int64
	if id.EmployeeID != "" {
		n, ok := s.unread.GetEmployee(ctx, id.EmployeeID)
		if !ok {
			var err error
			n, err = s.inbox.UnreadCountEmployee(ctx, id.EmployeeID)
			if err != nil {
				return 0, err
			}
			s.unread.SetEmployee(ctx, id.EmployeeID, n)
		}
		total += n
	}
	for _, role := range id.Roles {
		n, ok := s.unread.GetRole(ctx, role)
		if !ok {
			var err error
			n, err = s.inbox.UnreadCountRole(ctx, role)
			if err != nil {
				return 0, err
			}
			s.unread.SetRole(ctx, role, n)
		}
		total += n
	}
	return total, nil
}

// InboxByEmployee lists an arbitrary employee's personal rows; admin only.
func (s *Service) InboxByEmployee(ctx context.Context, caller model.Identity, employeeID string, f Filters, limit, offset int) (Page, error) {
	if !s.IsAdmin(caller) || employeeID == "" {
		return Page{}, ErrForbidden
	}
	rows, total, err := s.inbox.ListForEmployee(ctx, employeeID, f, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list inbox by employee: %w", err)
	}
	return s.toPage(rows, total, limit, offset), nil
}

// UnreadCount is the admin-scoped counter for one employee's personal rows.
func (s *Service) UnreadCount(ctx context.Context, caller model.Identity, employeeID string) (int64, error) {
	if !s.IsAdmin(caller) || employeeID == "" {
		return 0, ErrForbidden
	}
	return s.inbox.UnreadCountEmployee(ctx, employeeID)
}

// MarkRead sets readAt once. Zero affected rows surfaces as ErrNotFound
// without revealing whether the entry exists for someone else.
func (s *Service) MarkRead(ctx context.Context, inboxID string, caller model.Identity, now time.Time) error {
	if caller.Anonymous() {
		return ErrForbidden
	}
	rec, n, err := s.inbox.MarkRead(ctx, inboxID, caller, s.IsAdmin(caller), now)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	// the mutated row belongs to rec, which is another recipient entirely
	// when an admin acts on someone else's entry
	s.unread.Invalidate(ctx, rec)
	return nil
}

// MarkAllRead marks the caller's personal rows and, independently, all rows
// shared with the caller's roles. Either leg may touch nothing.
func (s *Service) MarkAllRead(ctx context.Context, id model.Identity, now time.Time) (int64, error) {
	if id.Anonymous() {
		return 0, ErrForbidden
	}
	n, err := s.inbox.MarkAllRead(ctx, id, now)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	s.unread.InvalidateIdentity(ctx, id)
	return n, nil
}

// SoftDelete hides the entry; same not-found semantics as MarkRead.
func (s *Service) SoftDelete(ctx context.Context, inboxID string, caller model.Identity, now time.Time) error {
	if caller.Anonymous() {
		return ErrForbidden
	}
	rec, n, err := s.inbox.SoftDelete(ctx, inboxID, caller, s.IsAdmin(caller), now)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.unread.Invalidate(ctx, rec)
	return nil
}
