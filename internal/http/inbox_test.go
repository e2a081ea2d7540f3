package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/mariks1/unipeople-notify/internal/http/middleware"
	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/service/inbox"
)

type stubInboxService struct {
	page       inbox.Page
	unread     int64
	marked     int64
	err        error
	adminRoles []string

	gotFilters inbox.Filters
	gotLimit   int
	gotOffset  int
	gotInboxID string
	gotCaller  model.Identity
}

func (s *stubInboxService) IsAdmin(id model.Identity) bool {
	return id.HasAnyRole(s.adminRoles)
}

func (s *stubInboxService) InboxForUser(_ context.Context, id model.Identity, f inbox.Filters, limit, offset int) (inbox.Page, error) {
	s.gotCaller, s.gotFilters, s.gotLimit, s.gotOffset = id, f, limit, offset
	return s.page, s.err
}

func (s *stubInboxService) UnreadCountForUser(_ context.Context, id model.Identity) (int64, error) {
	s.gotCaller = id
	return s.unread, s.err
}

func (s *stubInboxService) InboxByEmployee(_ context.Context, caller model.Identity, employeeID string, f inbox.Filters, limit, offset int) (inbox.Page, error) {
	if !s.IsAdmin(caller) {
		return inbox.Page{}, inbox.ErrForbidden
	}
	s.gotCaller, s.gotInboxID, s.gotFilters, s.gotLimit, s.gotOffset = caller, employeeID, f, limit, offset
	return s.page, s.err
}

func (s *stubInboxService) UnreadCount(_ context.Context, caller model.Identity, _ string) (int64, error) {
	if !s.IsAdmin(caller) {
		return 0, inbox.ErrForbidden
	}
	return s.unread, s.err
}

func (s *stubInboxService) MarkRead(_ context.Context, inboxID string, caller model.Identity, _ time.Time) error {
	s.gotInboxID, s.gotCaller = inboxID, caller
	return s.err
}

func (s *stubInboxService) MarkAllRead(_ context.Context, id model.Identity, _ time.Time) (int64, error) {
	s.gotCaller = id
	return s.marked, s.err
}

func (s *stubInboxService) SoftDelete(_ context.Context, inboxID string, caller model.Identity, _ time.Time) error {
	s.gotInboxID, s.gotCaller = inboxID, caller
	return s.err
}

func newTestRouter(svc *stubInboxService) *echo.Echo {
	e := echo.New()
	v1 := e.Group("/v1", middleware.IdentityMiddleware())
	v1.GET("/inbox", listInboxHandler(svc))
	v1.GET("/inbox/unread-count", unreadCountHandler(svc))
	v1.POST("/inbox/read-all", readAllHandler(svc))
	v1.POST("/inbox/:id/read", markReadHandler(svc))
	v1.DELETE("/inbox/:id", deleteHandler(svc))

	admin := v1.Group("/admin")
	admin.GET("/employees/:employeeId/inbox", adminInboxHandler(svc))
	admin.GET("/employees/:employeeId/inbox/unread-count", adminUnreadCountHandler(svc))
	return e
}

func doRequest(e *echo.Echo, method, target, employeeID, roles string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if employeeID != "" {
		req.Header.Set(middleware.HeaderEmployeeID, employeeID)
	}
	if roles != "" {
		req.Header.Set(middleware.HeaderRoles, roles)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListInboxRequiresIdentity(t *testing.T) {
	e := newTestRouter(&stubInboxService{})

	rec := doRequest(e, http.MethodGet, "/v1/inbox", "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing identity headers must yield 403, got %d", rec.Code)
	}
}

func TestListInboxOK(t *testing.T) {
	svc := &stubInboxService{page: inbox.Page{
		Items: []inbox.Item{{InboxID: "01A", Unread: true}},
		Total: 1, Limit: 50, Offset: 0,
	}}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodGet, "/v1/inbox", "emp-1", "HR, IT_ADMIN")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var page inbox.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].InboxID != "01A" {
		t.Errorf("unexpected page: %+v", page)
	}

	if svc.gotCaller.EmployeeID != "emp-1" {
		t.Errorf("unexpected caller: %+v", svc.gotCaller)
	}
	if len(svc.gotCaller.Roles) != 2 || svc.gotCaller.Roles[1] != "IT_ADMIN" {
		t.Errorf("roles header must be split and trimmed: %v", svc.gotCaller.Roles)
	}
}

func TestListInboxParsesFiltersAndPaging(t *testing.T) {
	svc := &stubInboxService{}
	e := newTestRouter(svc)

	target := "/v1/inbox?unreadOnly=true&source=leave-service&eventType=LEAVE_APPROVED" +
		"&from=2026-03-01T00:00:00Z&to=2026-03-31T00:00:00Z&limit=10&offset=20"
	rec := doRequest(e, http.MethodGet, target, "emp-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	f := svc.gotFilters
	if !f.UnreadOnly || f.Source != "leave-service" || f.EventType != "LEAVE_APPROVED" {
		t.Errorf("unexpected filters: %+v", f)
	}
	if f.From == nil || f.To == nil || !f.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time range not parsed: from=%v to=%v", f.From, f.To)
	}
	if svc.gotLimit != 10 || svc.gotOffset != 20 {
		t.Errorf("paging not parsed: limit=%d offset=%d", svc.gotLimit, svc.gotOffset)
	}
}

func TestListInboxClampsBadPaging(t *testing.T) {
	svc := &stubInboxService{}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodGet, "/v1/inbox?limit=100000&offset=-5", "emp-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.gotLimit != 50 || svc.gotOffset != 0 {
		t.Errorf("out-of-range paging must fall back to defaults: limit=%d offset=%d", svc.gotLimit, svc.gotOffset)
	}
}

func TestUnreadCountOK(t *testing.T) {
	svc := &stubInboxService{unread: 6}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodGet, "/v1/inbox/unread-count", "", "HR")
	if rec.Code != http.StatusOK {
		t.Fatalf("role-only identity must be accepted, got %d", rec.Code)
	}

	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["unread"] != 6 {
		t.Errorf("unexpected count body: %v", body)
	}
}

func TestMarkReadNotFound(t *testing.T) {
	svc := &stubInboxService{err: inbox.ErrNotFound}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodPost, "/v1/inbox/01MISSING/read", "emp-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if svc.gotInboxID != "01MISSING" {
		t.Errorf("handler must pass the path id through, got %q", svc.gotInboxID)
	}
}

func TestMarkReadOK(t *testing.T) {
	svc := &stubInboxService{}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodPost, "/v1/inbox/01A/read", "emp-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReadAllReportsMarked(t *testing.T) {
	svc := &stubInboxService{marked: 3}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodPost, "/v1/inbox/read-all", "emp-1", "HR")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["marked"] != 3 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestDeleteNoContent(t *testing.T) {
	svc := &stubInboxService{}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodDelete, "/v1/inbox/01A", "emp-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestDeleteNotFound(t *testing.T) {
	svc := &stubInboxService{err: inbox.ErrNotFound}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodDelete, "/v1/inbox/01GONE", "emp-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminInboxForbiddenWithoutRole(t *testing.T) {
	svc := &stubInboxService{adminRoles: []string{"ADMIN", "HR_MANAGER"}}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodGet, "/v1/admin/employees/emp-2/inbox", "emp-1", "HR")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestAdminInboxOK(t *testing.T) {
	svc := &stubInboxService{adminRoles: []string{"ADMIN", "HR_MANAGER"}}
	e := newTestRouter(svc)

	rec := doRequest(e, http.MethodGet, "/v1/admin/employees/emp-2/inbox", "emp-1", "HR_MANAGER")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotInboxID != "emp-2" {
		t.Errorf("target employee not passed through, got %q", svc.gotInboxID)
	}
}
