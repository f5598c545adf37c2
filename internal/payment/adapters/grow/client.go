package grow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/upcareer/jobdeck/internal/config"
	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
)

// Client calls the Grow merchant API to open hosted payment pages.
type Client struct {
	baseURL    string
	userID     string
	pageCode   string
	httpClient *http.Client
}

func NewClient(cfg config.GrowConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		userID:   cfg.UserID,
		pageCode: cfg.PageCode,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type ChargeRequest struct {
	ExternalUserID string
	Description    string
	AmountCents    int64
	SuccessURL     string
	CancelURL      string
}

type ChargeResponse struct {
	RedirectURL   string
	PageRequestID string
}

type createProcessRequest struct {
	UserID       string `json:"userId"`
	PageCode     string `json:"pageCode"`
	Sum          string `json:"sum"`
	Description  string `json:"description"`
	SuccessURL   string `json:"successUrl"`
	CancelURL    string `json:"cancelUrl"`
	ChargeType   string `json:"chargeType"`
	ExternalRef  string `json:"cField1"`
}

type createProcessResponse struct {
	Status string `json:"status"`
	Data   struct {
		URL           string `json:"url"`
		PageRequestID string `json:"pageRequestUid"`
	} `json:"data"`
	Err struct {
		Message string `json:"message"`
	} `json:"err"`
}

// CreateRecurringCharge opens a recurring payment page and returns the URL
// the user is redirected to.
func (c *Client) CreateRecurringCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	body, err := json.Marshal(createProcessRequest{
		UserID:      c.userID,
		PageCode:    c.pageCode,
		Sum:         fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100),
		Description: req.Description,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		ChargeType:  "recurring",
		ExternalRef: req.ExternalUserID,
	})
	if err != nil {
		return ChargeResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createPaymentProcess", bytes.NewReader(body))
	if err != nil {
		return ChargeResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResponse{}, err
	}
	defer resp.Body.Close()

	var decoded createProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChargeResponse{}, paymentdomain.ErrCheckoutFailed
	}
	if resp.StatusCode != http.StatusOK || decoded.Status != "1" || decoded.Data.URL == "" {
		return ChargeResponse{}, fmt.Errorf("%w: %s", paymentdomain.ErrCheckoutFailed, decoded.Err.Message)
	}

	return ChargeResponse{
		RedirectURL:   decoded.Data.URL,
		PageRequestID: decoded.Data.PageRequestID,
	}, nil
}
