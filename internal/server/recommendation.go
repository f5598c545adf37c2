package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetRecommendation(c *gin.Context) {
	rec, err := s.recommender.Recommend(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}
