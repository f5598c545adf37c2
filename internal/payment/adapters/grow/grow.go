package grow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
	"github.com/upcareer/jobdeck/internal/tier"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Grow-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "grow"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, "webhook_secret")
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type growWebhook struct {
	TransactionID string      `json:"transaction_id"`
	Status        string      `json:"status"`
	Sum           json.Number `json:"sum"`
	UserID        string      `json:"user_id"`
	Tier          string      `json:"tier"`
	BillingPeriod string      `json:"billing_period"`
	RecurringID   string      `json:"recurring_id"`
	PayerName     string      `json:"payer_name"`
	PayerEmail    string      `json:"payer_email"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var hook growWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(hook.TransactionID) == "" || strings.TrimSpace(hook.UserID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	event := &paymentdomain.PaymentEvent{
		Provider:      "grow",
		TransactionID: strings.TrimSpace(hook.TransactionID),
		UserID:        strings.TrimSpace(hook.UserID),
		RecurringID:   strings.TrimSpace(hook.RecurringID),
		PayerName:     strings.TrimSpace(hook.PayerName),
		PayerEmail:    strings.TrimSpace(hook.PayerEmail),
		RawPayload:    payload,
	}

	switch strings.ToLower(strings.TrimSpace(hook.Status)) {
	case "success", "approved":
		event.Type = paymentdomain.EventTypePaymentSucceeded
	case "failed", "declined":
		event.Type = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	if event.Type == paymentdomain.EventTypePaymentSucceeded {
		parsedTier, err := tier.ParseTier(hook.Tier)
		if err != nil {
			return nil, paymentdomain.ErrInvalidEvent
		}
		parsedPeriod, err := tier.ParsePeriod(hook.BillingPeriod)
		if err != nil {
			return nil, paymentdomain.ErrInvalidEvent
		}
		event.Tier = parsedTier
		event.BillingPeriod = parsedPeriod
	}

	if amount, err := sumToCents(hook.Sum); err == nil {
		event.AmountCents = amount
	}

	return event, nil
}

// sumToCents converts the decimal currency amount to integer cents.
func sumToCents(sum json.Number) (int64, error) {
	value, err := sum.Float64()
	if err != nil {
		return 0, err
	}
	return int64(value*100 + 0.5), nil
}

func readString(config map[string]any, key string) (string, bool) {
	if config == nil {
		return "", false
	}
	value, ok := config[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}
