package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/mariks1/unipeople-notify/internal/model"
)

// Gateway-injected headers. Token verification happens upstream; by the time
// a request reaches this service the gateway has already resolved the caller
// to an employee id and a role set.
const (
	HeaderEmployeeID = "X-Employee-Id"
	HeaderRoles      = "X-Roles"
)

const ctxIdentity = "identity"

// IdentityFromCtx extracts the authenticated identity set by IdentityMiddleware.
func IdentityFromCtx(c echo.Context) (model.Identity, bool) {
	v := c.Get(ctxIdentity)
	id, ok := v.(model.Identity)
	return id, ok
}

// IdentityMiddleware builds the caller identity from gateway headers.
// A caller carrying neither an employee id nor any role cannot touch the
// inbox and is rejected outright.
func IdentityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := model.Identity{
				EmployeeID: strings.TrimSpace(c.Request().Header.Get(HeaderEmployeeID)),
				Roles:      parseRoles(c.Request().Header.Get(HeaderRoles)),
			}
			if id.Anonymous() {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "missing identity"})
			}
			c.Set(ctxIdentity, id)
			return next(c)
		}
	}
}

func parseRoles(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
