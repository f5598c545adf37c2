package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/upcareer/jobdeck/internal/observability/logger"
	"github.com/upcareer/jobdeck/internal/tier"
	usagedomain "github.com/upcareer/jobdeck/internal/usage/domain"
	"go.uber.org/zap"
)

func (s *Server) UsageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.usageLimiter.Allow(ctx, c.Param("user_id"))
		if err != nil {
			logger.FromContext(ctx).Warn("usage rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(result.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func (s *Server) IncrementUsage(c *gin.Context) {
	resource, err := tier.ParseResource(c.Param("resource"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.usagesvc.Increment(c.Request.Context(), usagedomain.IncrementRequest{
		UserID:   c.Param("user_id"),
		Resource: resource,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
