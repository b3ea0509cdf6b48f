package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/arialabs/aria-admin/internal/policy"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/metrics"
	"github.com/arialabs/aria-admin/pkg/response"
)

// RequirePermission gates the route on the actor holding the permission.
// Deny responses carry no policy internals, only the Forbidden kind; store
// outages surface as Unavailable.
func RequirePermission(resolver *policy.Resolver, permissionCode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := ActorID(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowed, err := resolver.HasAll(c.Request.Context(), actorID, []string{permissionCode})
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Code == apperrors.ErrUnavailable.Code {
				metrics.PermissionChecks.WithLabelValues(permissionCode, "error").Inc()
				response.Error(c, appErr)
				c.Abort()
				return
			}
			// Unknown or inactive actors are a plain deny.
			allowed = false
		}

		if !allowed {
			metrics.PermissionChecks.WithLabelValues(permissionCode, "denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues(permissionCode, "allowed").Inc()
		c.Next()
	}
}
