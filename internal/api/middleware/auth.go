// server/internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"upcycle-api-server/internal/auth"
	"upcycle-api-server/internal/models"
)

const actorKey = "actor"

// Authenticate validates the bearer token and puts the caller's Actor into
// the request context.
func Authenticate(tokens *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Authorization header is required", "code": "unauthorized"}})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid token format", "code": "unauthorized"}})
			return
		}

		actor, err := tokens.ParseJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token", "code": "unauthorized"}})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// Authorize lets the request through only for the given actor kinds.
func Authorize(allowed ...models.ActorKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			// Authenticate must run first.
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "actor not found in context", "code": "internal"}})
			return
		}
		for _, kind := range allowed {
			if actor.Kind == kind {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "You do not have permission to access this resource", "code": "forbidden"}})
	}
}

func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
