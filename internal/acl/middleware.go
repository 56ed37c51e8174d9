// internal/acl/middleware.go
//
// Chi middleware that gates admin form pages behind a capability.

package acl

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/adept-forms/internal/auth"
)

// CapabilityChecker is satisfied by *Checker and by test fakes.
type CapabilityChecker interface {
	Can(ctx context.Context, capability string) (bool, error)
}

// RequireCapability rejects requests whose user lacks capability: 401
// without a user, 403 without the grant.
func RequireCapability(c CapabilityChecker, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserID(r.Context()); !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			allowed, err := c.Can(r.Context(), capability)
			if err != nil {
				zap.L().Error("acl capability lookup", zap.String("capability", capability), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
