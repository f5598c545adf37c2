package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyRequired authenticates API requests against the configured static
// key. An empty configured key disables authentication, which is the
// development default.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.cfg.APIKey)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}
