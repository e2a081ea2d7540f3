package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/mariks1/unipeople-notify/internal/http/middleware"
	"github.com/mariks1/unipeople-notify/internal/repository"
)

func adminInboxHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		employeeID := c.Param("employeeId")
		limit, offset := parsePage(c)

		page, err := svc.InboxByEmployee(c.Request().Context(), caller, employeeID, parseFilters(c), limit, offset)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, page)
	}
}

func adminUnreadCountHandler(svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		n, err := svc.UnreadCount(c.Request().Context(), caller, c.Param("employeeId"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int64{"unread": n})
	}
}

// adminReportsHandler lists fan-out deliveries from the ClickHouse mirror.
func adminReportsHandler(chRepo repository.CHDeliveriesRepository, svc InboxService) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, ok := middleware.IdentityFromCtx(c)
		if !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
		// same elevation rule as the other admin endpoints
		if !svc.IsAdmin(caller) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}

		limit, offset := parsePage(c)
		source := strings.TrimSpace(c.QueryParam("source"))
		eventType := strings.TrimSpace(c.QueryParam("eventType"))

		rows, err := chRepo.List(c.Request().Context(), source, eventType, limit, offset)
		if err != nil {
			log.Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
