package grow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
	"github.com/upcareer/jobdeck/internal/tier"
)

func newAdapter(t *testing.T, secret string) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": secret},
	})
	require.NoError(t, err)
	return adapter
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFactoryRejectsMissingSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{}})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	_, err = NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": "   "},
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t, "topsecret")
	payload := []byte(`{"transaction_id":"tx-1"}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, sign("topsecret", payload))

	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	adapter := newAdapter(t, "topsecret")
	payload := []byte(`{"transaction_id":"tx-1"}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, sign("othersecret", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, http.Header{}), paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	adapter := newAdapter(t, "topsecret")
	payload := []byte(`{"sum":"17.00"}`)

	headers := http.Header{}
	headers.Set(SignatureHeader, sign("topsecret", payload))

	tampered := []byte(`{"sum":"0.01"}`)
	assert.ErrorIs(t, adapter.Verify(context.Background(), tampered, headers), paymentdomain.ErrInvalidSignature)
}

func TestParseSuccessEvent(t *testing.T) {
	adapter := newAdapter(t, "s")
	payload := []byte(`{
		"transaction_id": "tx-42",
		"status": "success",
		"sum": 17.00,
		"user_id": "1234567890123456789",
		"tier": "pro",
		"billing_period": "monthly",
		"recurring_id": "rec-7",
		"payer_name": "Dana",
		"payer_email": "dana@example.test"
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "tx-42", event.TransactionID)
	assert.Equal(t, tier.TierPro, event.Tier)
	assert.Equal(t, tier.PeriodMonthly, event.BillingPeriod)
	assert.Equal(t, int64(1700), event.AmountCents)
	assert.Equal(t, "rec-7", event.RecurringID)
	assert.Equal(t, "dana@example.test", event.PayerEmail)
}

func TestParseFailureEvent(t *testing.T) {
	adapter := newAdapter(t, "s")
	payload := []byte(`{"transaction_id":"tx-9","status":"failed","user_id":"42"}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentFailed, event.Type)
}

func TestParseRejectsBadInput(t *testing.T) {
	adapter := newAdapter(t, "s")

	_, err := adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"status":"success"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	_, err = adapter.Parse(context.Background(), []byte(`{"transaction_id":"t","user_id":"1","status":"pending"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`{"transaction_id":"t","user_id":"1","status":"success","tier":"gold","billing_period":"monthly"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
