package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ApplicationHeader selects the application (partition) a request acts on.
const ApplicationHeader = "X-Application-Name"

// ApplicationKey is the gin context key holding the resolved application name.
const ApplicationKey = "application"

// AdminKeyMiddleware guards directory and management routes with a static
// Bearer key. An empty key disables the check.
func AdminKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}

// ApplicationMiddleware resolves the application name from ApplicationHeader,
// falling back to def, and stores it under ApplicationKey.
func ApplicationMiddleware(def string) gin.HandlerFunc {
	return func(c *gin.Context) {
		app := strings.TrimSpace(c.GetHeader(ApplicationHeader))
		if app == "" {
			app = def
		}
		if len(app) > 256 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "application name too long"})
			return
		}
		c.Set(ApplicationKey, app)
		c.Next()
	}
}

// Application returns the name stored by ApplicationMiddleware, or "".
func Application(c *gin.Context) string {
	return c.GetString(ApplicationKey)
}
