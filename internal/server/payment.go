package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
	"github.com/upcareer/jobdeck/internal/tier"
)

const maxWebhookBodyBytes = 1 << 20

type checkoutRequest struct {
	Tier          string `json:"tier"`
	BillingPeriod string `json:"billing_period"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkoutTier, err := tier.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := tier.ParsePeriod(req.BillingPeriod)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentsvc.CreateCheckout(c.Request.Context(), paymentdomain.CheckoutRequest{
		UserID:        c.Param("user_id"),
		Tier:          checkoutTier,
		BillingPeriod: period,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) IngestPaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	if err := s.paymentsvc.IngestWebhook(c.Request.Context(), c.Param("provider"), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
