package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mariks1/unipeople-notify/internal/cache"
	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/repository"
	"github.com/mariks1/unipeople-notify/internal/title"
)

type stubInboxRepo struct {
	rows  []model.InboxRow
	total int64

	unreadEmployee map[string]int64
	unreadRole     map[string]int64

	affected  int64
	recipient model.Recipient
	err       error

	markReadCalls   int
	softDeleteCalls int
	lastIsAdmin     bool
	lastEmployeeID  string
}

// fakeCounters records which unread-counter keys get invalidated.
type fakeCounters struct {
	invalidated []model.Recipient
	identities  []model.Identity
}

func (f *fakeCounters) GetEmployee(context.Context, string) (int64, bool) { return 0, false }
func (f *fakeCounters) SetEmployee(context.Context, string, int64)       {}
func (f *fakeCounters) GetRole(context.Context, string) (int64, bool)    { return 0, false }
func (f *fakeCounters) SetRole(context.Context, string, int64)           {}

func (f *fakeCounters) Invalidate(_ context.Context, recipients ...model.Recipient) {
	f.invalidated = append(f.invalidated, recipients...)
}

func (f *fakeCounters) InvalidateIdentity(_ context.Context, id model.Identity) {
	f.identities = append(f.identities, id)
}

func (s *stubInboxRepo) Deliver(context.Context, *sqlx.Tx, int64, []model.Recipient, time.Time) ([]model.InboxEntry, error) {
	panic("not used")
}

func (s *stubInboxRepo) ListForIdentity(_ context.Context, _ model.Identity, _ repository.InboxFilters, _, _ int) ([]model.InboxRow, int64, error) {
	return s.rows, s.total, s.err
}

func (s *stubInboxRepo) ListForEmployee(_ context.Context, employeeID string, _ repository.InboxFilters, _, _ int) ([]model.InboxRow, int64, error) {
	s.lastEmployeeID = employeeID
	return s.rows, s.total, s.err
}

func (s *stubInboxRepo) UnreadCountEmployee(_ context.Context, employeeID string) (int64, error) {
	s.lastEmployeeID = employeeID
	return s.unreadEmployee[employeeID], s.err
}

func (s *stubInboxRepo) UnreadCountRole(_ context.Context, role string) (int64, error) {
	return s.unreadRole[role], s.err
}

func (s *stubInboxRepo) MarkRead(_ context.Context, _ string, _ model.Identity, isAdmin bool, _ time.Time) (model.Recipient, int64, error) {
	s.markReadCalls++
	s.lastIsAdmin = isAdmin
	return s.recipient, s.affected, s.err
}

func (s *stubInboxRepo) MarkAllRead(_ context.Context, _ model.Identity, _ time.Time) (int64, error) {
	return s.affected, s.err
}

func (s *stubInboxRepo) SoftDelete(_ context.Context, _ string, _ model.Identity, isAdmin bool, _ time.Time) (model.Recipient, int64, error) {
	s.softDeleteCalls++
	s.lastIsAdmin = isAdmin
	return s.recipient, s.affected, s.err
}

func newService(repo repository.InboxRepository) *Service {
	// nil redis client: the cache degrades to a pass-through
	return New(repo, cache.NewUnreadCache(nil, time.Minute), title.NewDefaultRegistry(), []string{"ADMIN", "HR_MANAGER"})
}

func employee(id string, roles ...string) model.Identity {
	return model.Identity{EmployeeID: id, Roles: roles}
}

func TestInboxForUserRejectsAnonymous(t *testing.T) {
	svc := newService(&stubInboxRepo{})
	_, err := svc.InboxForUser(context.Background(), model.Identity{}, Filters{}, 50, 0)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestInboxForUserMapsRows(t *testing.T) {
	entity := "emp-9"
	read := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &stubInboxRepo{
		total: 12,
		rows: []model.InboxRow{
			{
				InboxEntry: model.InboxEntry{ID: "01AAA", RecipientEmployeeID: "emp-1", DeliveredAt: read.Add(time.Hour)},
				EventID:    "e1",
				Source:     "leave-service",
				EventType:  "LEAVE_APPROVED",
				EntityID:   &entity,
				Payload:    json.RawMessage(`{"employeeName":"Dana","leaveType":"annual"}`),
			},
			{
				InboxEntry: model.InboxEntry{ID: "01AAB", RecipientRole: "HR", ReadAt: &read},
				EventID:    "e2",
				Source:     "docs-service",
				EventType:  "SOME_NEW_KIND",
				Payload:    json.RawMessage(`{}`),
			},
		},
	}
	svc := newService(repo)

	page, err := svc.InboxForUser(context.Background(), employee("emp-1", "HR"), Filters{}, 50, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if page.Total != 12 || page.Limit != 50 || page.Offset != 0 {
		t.Fatalf("unexpected page meta: %+v", page)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}

	first := page.Items[0]
	if !first.Unread || first.InboxID != "01AAA" || first.Event.EventID != "e1" {
		t.Errorf("unexpected first item: %+v", first)
	}
	if first.Event.Title == "" || first.Event.Title == "LEAVE_APPROVED" {
		t.Errorf("known event type must render a human title, got %q", first.Event.Title)
	}

	second := page.Items[1]
	if second.Unread {
		t.Error("read entry must report unread=false")
	}
	if second.Event.Title != "SOME_NEW_KIND" {
		t.Errorf("unknown event type falls back to the raw type, got %q", second.Event.Title)
	}
}

func TestUnreadCountForUserSumsScopes(t *testing.T) {
	repo := &stubInboxRepo{
		unreadEmployee: map[string]int64{"emp-1": 3},
		unreadRole:     map[string]int64{"HR": 2, "IT_ADMIN": 4},
	}
	svc := newService(repo)

	n, err := svc.UnreadCountForUser(context.Background(), employee("emp-1", "HR", "IT_ADMIN"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 9 {
		t.Fatalf("expected 3+2+4=9, got %d", n)
	}
}

func TestUnreadCountForUserRoleOnlyIdentity(t *testing.T) {
	repo := &stubInboxRepo{unreadRole: map[string]int64{"HR": 7}}
	svc := newService(repo)

	n, err := svc.UnreadCountForUser(context.Background(), model.Identity{Roles: []string{"HR"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
	if repo.lastEmployeeID != "" {
		t.Error("employee counter must not be queried without an employee id")
	}
}

func TestInboxByEmployeeRequiresAdmin(t *testing.T) {
	svc := newService(&stubInboxRepo{})

	if _, err := svc.InboxByEmployee(context.Background(), employee("emp-1", "HR"), "emp-2", Filters{}, 50, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin must be rejected, got %v", err)
	}
	if _, err := svc.InboxByEmployee(context.Background(), employee("emp-1", "HR_MANAGER"), "", Filters{}, 50, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty target employee must be rejected, got %v", err)
	}
	if _, err := svc.InboxByEmployee(context.Background(), employee("emp-1", "HR_MANAGER"), "emp-2", Filters{}, 50, 0); err != nil {
		t.Fatalf("admin must pass, got %v", err)
	}
}

func TestUnreadCountAdminScoped(t *testing.T) {
	repo := &stubInboxRepo{unreadEmployee: map[string]int64{"emp-2": 5}}
	svc := newService(repo)

	if _, err := svc.UnreadCount(context.Background(), employee("emp-1"), "emp-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin must be rejected, got %v", err)
	}

	n, err := svc.UnreadCount(context.Background(), employee("emp-1", "ADMIN"), "emp-2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}

func TestMarkReadZeroRowsIsNotFound(t *testing.T) {
	repo := &stubInboxRepo{affected: 0}
	svc := newService(repo)

	err := svc.MarkRead(context.Background(), "01MISSING", employee("emp-1"), time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkReadPassesAdminFlag(t *testing.T) {
	repo := &stubInboxRepo{affected: 1}
	svc := newService(repo)

	if err := svc.MarkRead(context.Background(), "01A", employee("emp-1", "ADMIN"), time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !repo.lastIsAdmin {
		t.Error("admin caller must reach the repository with isAdmin=true")
	}

	if err := svc.MarkRead(context.Background(), "01A", employee("emp-1"), time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if repo.lastIsAdmin {
		t.Error("plain caller must reach the repository with isAdmin=false")
	}
}

func TestMarkReadAdminInvalidatesRowOwner(t *testing.T) {
	repo := &stubInboxRepo{affected: 1, recipient: model.EmployeeRecipient("emp-1")}
	counters := &fakeCounters{}
	svc := New(repo, counters, title.NewDefaultRegistry(), []string{"ADMIN"})

	// admin emp-9 marks emp-1's entry read; emp-1's counter changed, not emp-9's
	if err := svc.MarkRead(context.Background(), "01A", employee("emp-9", "ADMIN"), time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(counters.invalidated) != 1 || counters.invalidated[0] != model.EmployeeRecipient("emp-1") {
		t.Fatalf("must drop the row owner's counter key, got %v", counters.invalidated)
	}
	if len(counters.identities) != 0 {
		t.Fatalf("caller identity keys must stay untouched, got %v", counters.identities)
	}
}

func TestSoftDeleteInvalidatesRowRecipient(t *testing.T) {
	repo := &stubInboxRepo{affected: 1, recipient: model.RoleRecipient("HR")}
	counters := &fakeCounters{}
	svc := New(repo, counters, title.NewDefaultRegistry(), []string{"ADMIN"})

	if err := svc.SoftDelete(context.Background(), "01A", employee("emp-9", "ADMIN"), time.Now()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(counters.invalidated) != 1 || counters.invalidated[0] != model.RoleRecipient("HR") {
		t.Fatalf("must drop the shared role counter key, got %v", counters.invalidated)
	}
}

func TestMarkReadNotFoundLeavesCacheAlone(t *testing.T) {
	repo := &stubInboxRepo{affected: 0}
	counters := &fakeCounters{}
	svc := New(repo, counters, title.NewDefaultRegistry(), []string{"ADMIN"})

	if err := svc.MarkRead(context.Background(), "01GONE", employee("emp-1"), time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(counters.invalidated)+len(counters.identities) != 0 {
		t.Fatal("a failed mutation must not invalidate any counter")
	}
}

func TestSoftDeleteZeroRowsIsNotFound(t *testing.T) {
	repo := &stubInboxRepo{affected: 0}
	svc := newService(repo)

	err := svc.SoftDelete(context.Background(), "01GONE", employee("emp-1"), time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkAllReadReportsAffected(t *testing.T) {
	repo := &stubInboxRepo{affected: 4}
	svc := newService(repo)

	n, err := svc.MarkAllRead(context.Background(), employee("emp-1", "HR"), time.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
}

func TestMutationsRejectAnonymous(t *testing.T) {
	repo := &stubInboxRepo{affected: 1}
	svc := newService(repo)
	anon := model.Identity{}

	if err := svc.MarkRead(context.Background(), "01A", anon, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("MarkRead: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.MarkAllRead(context.Background(), anon, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("MarkAllRead: expected ErrForbidden, got %v", err)
	}
	if err := svc.SoftDelete(context.Background(), "01A", anon, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("SoftDelete: expected ErrForbidden, got %v", err)
	}
	if repo.markReadCalls+repo.softDeleteCalls != 0 {
		t.Error("anonymous callers must never reach the repository")
	}
}
