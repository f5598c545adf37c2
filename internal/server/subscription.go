package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
)

func (s *Server) GetSubscription(c *gin.Context) {
	status, err := s.subscriptionsvc.GetStatus(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type tierChangeRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) UpgradeSubscription(c *gin.Context) {
	var req tierChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newTier, err := tier.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionsvc.Upgrade(c.Request.Context(), subscriptiondomain.UpgradeRequest{
		UserID:  c.Param("user_id"),
		NewTier: newTier,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) DowngradeSubscription(c *gin.Context) {
	var req tierChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newTier, err := tier.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subscriptionsvc.ScheduleDowngrade(c.Request.Context(), subscriptiondomain.ScheduleDowngradeRequest{
		UserID:  c.Param("user_id"),
		NewTier: newTier,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scheduled": true})
}

type periodChangeRequest struct {
	BillingPeriod string `json:"billing_period"`
}

func (s *Server) ChangeBillingPeriod(c *gin.Context) {
	var req periodChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newPeriod, err := tier.ParsePeriod(req.BillingPeriod)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subscriptionsvc.ScheduleBillingPeriodChange(c.Request.Context(), subscriptiondomain.SchedulePeriodChangeRequest{
		UserID:    c.Param("user_id"),
		NewPeriod: newPeriod,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"scheduled": true})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	if err := s.subscriptionsvc.Cancel(c.Request.Context(), c.Param("user_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	if err := s.subscriptionsvc.Reactivate(c.Request.Context(), c.Param("user_id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reactivated": true})
}

func (s *Server) ListSubscriptionEvents(c *gin.Context) {
	pageSize, err := parsePageSize(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page size"))
		return
	}

	resp, err := s.subscriptionsvc.ListEvents(c.Request.Context(), subscriptiondomain.ListEventsRequest{
		UserID:    c.Param("user_id"),
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parsePageSize(value string) (int32, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 32)
	if err != nil || parsed < 0 {
		return 0, ErrInvalidRequest
	}
	return int32(parsed), nil
}
