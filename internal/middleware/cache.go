package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl sets the Cache-Control header on successful GET responses.
// Use "private" for per-user data and "public" for shared data.
func CacheControl(scope string, maxAgeSeconds int) gin.HandlerFunc {
	value := fmt.Sprintf("%s, max-age=%d", scope, maxAgeSeconds)
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
		if c.Writer.Status() >= 400 {
			c.Writer.Header().Set("Cache-Control", "no-store")
		}
	}
}
