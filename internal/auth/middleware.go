package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userKey  = "auth.user"
	tokenKey = "auth.token"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// user in the gin context.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token required"})
			return
		}
		user, err := s.CurrentUser(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				s.log.Error("token check failed", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(userKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// UserFrom returns the user stored by RequireAuth.
func UserFrom(c *gin.Context) (*User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// TokenFrom returns the bearer token accepted by RequireAuth.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
