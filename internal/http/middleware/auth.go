package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-shop-chat/internal/domain"
)

const (
	ctxKeyUserID = "userID" // int64
	ctxKeyRole   = "role"   // domain.Role
)

// IdentityVerifier turns an Authorization header value into an identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// AuthRequired rejects requests without a valid bearer token. On success the
// caller's id and role are stored in the Gin context; see UserID and
// IdentityFrom.
//
// Rejections use the standard error envelope with code "unauthorized" and a
// WWW-Authenticate challenge.
func AuthRequired(v IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.Verify(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid access token",
			})
			return
		}
		c.Set(ctxKeyUserID, id.ID)
		c.Set(ctxKeyRole, id.Role)
		c.Next()
	}
}

// UserID returns the authenticated user id, or 0 when the request has not
// passed AuthRequired.
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// IdentityFrom returns the identity stored by AuthRequired.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	id := UserID(c)
	if id == 0 {
		return domain.Identity{}, false
	}
	role, _ := c.Get(ctxKeyRole)
	r, _ := role.(domain.Role)
	return domain.Identity{ID: id, Role: r}, true
}
