package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/mariks1/unipeople-notify/internal/http/middleware"
	"github.com/mariks1/unipeople-notify/internal/model"
	"github.com/mariks1/unipeople-notify/internal/service/inbox"
)

// InboxService is the part of the inbox service the handlers depend on.
type InboxService interface {
	IsAdmin(id model.Identity) bool
	InboxForUser(ctx context.Context, id model.Identity, f inbox.Filters, limit, offset int) (inbox.Page, error)
	UnreadCountForUser(ctx context.Context, id model.Identity) (int64, error)
	InboxByEmployee(ctx context.Context, caller model.Identity, employeeID string, f inbox.Filters, limit, offset int) (inbox.Page, error)
	UnreadCount(ctx context.Context, caller model.Identity, employeeID string) (int64, error)
	MarkRead(ctx context.Context, inboxID string, caller model.Identity, now time.Time) error
	MarkAllRead(ctx context.Context, id model.Identity, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, inboxID string, caller model.Identity, now time.Time) error
}

func parseFilters(c echo.Context) inbox.Filters {
	var f inbox.Filters

	if v := strings.TrimSpace(c.QueryParam("unreadOnly")); v != "" {
		f.UnreadOnly = v == "true" || v == "1"
	}
	f.Source = strings.TrimSpace(c.QueryParam("source"))
	f.EventType = strings.TrimSpace(c.QueryParam("eventType"))

	if v := strings.TrimSpace(c.QueryParam("from")); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := strings.TrimSpace(c.QueryParam("to")); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	return f
}

func parsePage(c echo.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, inbox.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, inbox.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Errorf("inbox service error: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func listInboxHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		limit, offset := parsePage(c)

		page, err := svc.InboxForUser(c.Request().Context(), id, parseFilters(c), limit, offset)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, page)
	}
}

func unreadCountHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		n, err := svc.UnreadCountForUser(c.Request().Context(), id)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int64{"unread": n})
	}
}

func readAllHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		n, err := svc.MarkAllRead(c.Request().Context(), id, time.Now().UTC())
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int64{"marked": n})
	}
}

func markReadHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		inboxID := c.Param("id")
		if inboxID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id"})
		}
		if err := svc.MarkRead(c.Request().Context(), inboxID, id, time.Now().UTC()); err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"read": true})
	}
}

func deleteHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		inboxID := c.Param("id")
		if inboxID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing id"})
		}
		if err := svc.SoftDelete(c.Request().Context(), inboxID, id, time.Now().UTC()); err != nil {
			return serviceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
