package middleware

import (
	"net/http"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/handler"
)

// AdminOnly middleware ensures the user has 'admin' role.
// Must be used AFTER Auth middleware which sets contextkeys.UserRole in context.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.RoleFrom(r.Context()) != domain.RoleAdmin {
			handler.Error(w, domain.ErrForbidden("forbidden: admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
