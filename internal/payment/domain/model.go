package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/tier"
	"gorm.io/datatypes"
)

// EventRecord is the audit row for every webhook we accepted. The unique
// provider event id makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:idx_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	UserID          snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	// ProcessedAt stays NULL until routing succeeded; a redelivery of an
	// unprocessed event is retried, not deduped.
	ProcessedAt *time.Time `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// PaymentEvent is the canonical event parsed out of a provider webhook.
type PaymentEvent struct {
	Provider      string
	TransactionID string
	Type          string
	UserID        string
	Tier          tier.Tier
	BillingPeriod tier.BillingPeriod
	AmountCents   int64
	RecurringID   string
	PayerName     string
	PayerEmail    string
	RawPayload    []byte
}

// AdapterConfig carries provider credentials into a factory.
type AdapterConfig struct {
	Config map[string]any
}

// PaymentAdapter verifies and parses one provider's webhooks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

// AdapterFactory builds adapters for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type CheckoutRequest struct {
	UserID        string             `json:"user_id"`
	Tier          tier.Tier          `json:"tier"`
	BillingPeriod tier.BillingPeriod `json:"billing_period"`
	SuccessURL    string             `json:"success_url"`
	CancelURL     string             `json:"cancel_url"`
}

type CheckoutResponse struct {
	RedirectURL   string `json:"redirect_url"`
	PageRequestID string `json:"page_request_id"`
}

type Service interface {
	CreateCheckout(context.Context, CheckoutRequest) (CheckoutResponse, error)
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrCheckoutFailed   = errors.New("checkout_failed")
)
