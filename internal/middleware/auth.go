package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/identity"
	"chat-sync/internal/models"
)

// AuthorKey is the gin context key holding the caller's author name.
const AuthorKey = "authorName"

// AuthMiddleware resolves the Authorization bearer token to an author name.
// Requests without a token proceed as the anonymous author. WebSocket clients
// may pass the token as the access_token query parameter.
func AuthMiddleware(verifier *identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				return
			}
			token = parts[1]
		}

		name, err := verifier.AuthorName(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(AuthorKey, name)
		c.Next()
	}
}

// AuthorName returns the author resolved by AuthMiddleware.
func AuthorName(c *gin.Context) string {
	return models.AuthorOrAnonymous(c.GetString(AuthorKey))
}
