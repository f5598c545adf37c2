package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/upcareer/jobdeck/internal/tier"
)

func (s *Server) CheckFeature(c *gin.Context) {
	feature, err := tier.ParseFeature(c.Param("feature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.entitlements.CheckFeature(c.Request.Context(), c.Param("user_id"), feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) CheckResource(c *gin.Context) {
	resource, err := tier.ParseResource(c.Param("resource"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.entitlements.CheckUsage(c.Request.Context(), c.Param("user_id"), resource)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}
