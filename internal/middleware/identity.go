package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arialabs/aria-admin/internal/auditctx"
	"github.com/arialabs/aria-admin/pkg/errors"
	"github.com/arialabs/aria-admin/pkg/response"
)

// Context keys populated by Identity.
const (
	CtxActorIDKey   = "actor_id"
	CtxActorNameKey = "actor_name"
	CtxRequestIDKey = "request_id"
)

// Headers set by the authentication gateway in front of this service.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
	HeaderRequestID = "X-Request-ID"
)

// Identity trusts the verified identity forwarded by the external auth
// gateway and stamps a request ID. Requests without an actor are rejected;
// token validation itself happens upstream.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, requestID)
		c.Writer.Header().Set(HeaderRequestID, requestID)

		rawID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if rawID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		actorID, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || actorID == 0 {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		actor := auditctx.Actor{
			ID:        actorID,
			Name:      strings.TrimSpace(c.GetHeader(HeaderActorName)),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: requestID,
		}

		c.Set(CtxActorIDKey, actorID)
		c.Set(CtxActorNameKey, actor.Name)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

// ActorID extracts the verified actor from the gin context.
func ActorID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(CtxActorIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
