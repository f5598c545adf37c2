package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// tokenSafetyMargin renews the bearer token this long before the provider
// says it expires.
const tokenSafetyMargin = 2 * time.Minute

var (
	ErrNotConfigured = errors.New("invoicing_not_configured")
	ErrRequestFailed = errors.New("invoicing_request_failed")
)

type Invoice struct {
	DocumentID string `json:"document_id"`
	URL        string `json:"url"`
}

// Invoicer issues receipts on the Morning invoicing provider.
type Invoicer interface {
	CreateOrFindCustomer(ctx context.Context, name, email string) (string, error)
	CreateInvoice(ctx context.Context, customerID, description string, amountCents int64) (Invoice, error)
}

type Client struct {
	log *zap.Logger

	baseURL    string
	apiKeyID   string
	apiSecret  string
	httpClient *http.Client
	clock      clock.Clock

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type ClientParam struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock
}

func NewClient(p ClientParam) Invoicer {
	return &Client{
		log:        p.Log.Named("invoicing.morning"),
		baseURL:    strings.TrimRight(p.Cfg.Morning.BaseURL, "/"),
		apiKeyID:   p.Cfg.Morning.APIKeyID,
		apiSecret:  p.Cfg.Morning.APISecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		clock:      p.Clock,
	}
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// bearerToken returns the cached token, fetching a fresh one when it is
// missing or about to expire.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if c.baseURL == "" || c.apiKeyID == "" {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"id":     c.apiKeyID,
		"secret": c.apiSecret,
	})
	if err != nil {
		return "", err
	}

	var decoded tokenResponse
	if err := c.post(ctx, "/account/token", "", body, &decoded); err != nil {
		return "", err
	}
	if decoded.Token == "" {
		return "", ErrRequestFailed
	}

	lifetime := time.Duration(decoded.ExpiresIn) * time.Second
	if lifetime > tokenSafetyMargin {
		lifetime -= tokenSafetyMargin
	}
	c.token = decoded.Token
	c.tokenExpiry = now.Add(lifetime)
	return c.token, nil
}

type customer struct {
	ID string `json:"id"`
}

type customerSearchResponse struct {
	Items []customer `json:"items"`
}

// CreateOrFindCustomer implements Invoicer. Lookup is by email; a miss
// creates the customer.
func (c *Client) CreateOrFindCustomer(ctx context.Context, name, email string) (string, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	searchBody, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return "", err
	}
	var search customerSearchResponse
	if err := c.post(ctx, "/clients/search", token, searchBody, &search); err != nil {
		return "", err
	}
	if len(search.Items) > 0 {
		return search.Items[0].ID, nil
	}

	createBody, err := json.Marshal(map[string]string{
		"name":   name,
		"emails": email,
	})
	if err != nil {
		return "", err
	}
	var created customer
	if err := c.post(ctx, "/clients", token, createBody, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", ErrRequestFailed
	}
	return created.ID, nil
}

type documentResponse struct {
	ID  string `json:"id"`
	URL struct {
		Origin string `json:"origin"`
	} `json:"url"`
}

// CreateInvoice implements Invoicer.
func (c *Client) CreateInvoice(ctx context.Context, customerID, description string, amountCents int64) (Invoice, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return Invoice{}, err
	}

	body, err := json.Marshal(map[string]any{
		"type":   "invoice",
		"client": map[string]string{"id": customerID},
		"rows": []map[string]any{
			{
				"description": description,
				"quantity":    1,
				"price":       float64(amountCents) / 100,
			},
		},
	})
	if err != nil {
		return Invoice{}, err
	}

	var decoded documentResponse
	if err := c.post(ctx, "/documents", token, body, &decoded); err != nil {
		return Invoice{}, err
	}
	if decoded.ID == "" {
		return Invoice{}, ErrRequestFailed
	}
	return Invoice{DocumentID: decoded.ID, URL: decoded.URL.Origin}, nil
}

func (c *Client) post(ctx context.Context, path, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s", ErrRequestFailed, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
