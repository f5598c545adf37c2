package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/upcareer/jobdeck/internal/clock"
	"github.com/upcareer/jobdeck/internal/config"
	"github.com/upcareer/jobdeck/internal/invoicing"
	obsmetrics "github.com/upcareer/jobdeck/internal/observability/metrics"
	"github.com/upcareer/jobdeck/internal/payment/adapters"
	"github.com/upcareer/jobdeck/internal/payment/adapters/grow"
	paymentdomain "github.com/upcareer/jobdeck/internal/payment/domain"
	subscriptiondomain "github.com/upcareer/jobdeck/internal/subscription/domain"
	"github.com/upcareer/jobdeck/internal/tier"
	pkgdb "github.com/upcareer/jobdeck/pkg/db"
	"github.com/upcareer/jobdeck/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID         *snowflake.Node
	clock         clock.Clock
	registry      *adapters.Registry
	growClient    *grow.Client
	subscriptions subscriptiondomain.Service
	invoicer      invoicing.Invoicer
	events        repository.Repository[paymentdomain.EventRecord]
	metrics       *obsmetrics.Metrics
	cfg           config.Config
}

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Registry      *adapters.Registry
	GrowClient    *grow.Client
	Subscriptions subscriptiondomain.Service
	Invoicer      invoicing.Invoicer  `optional:"true"`
	Metrics       *obsmetrics.Metrics `optional:"true"`
	Cfg           config.Config
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:         p.GenID,
		clock:         p.Clock,
		registry:      p.Registry,
		growClient:    p.GrowClient,
		subscriptions: p.Subscriptions,
		invoicer:      p.Invoicer,
		events:        repository.ProvideStore[paymentdomain.EventRecord](p.DB),
		metrics:       p.Metrics,
		cfg:           p.Cfg,
	}
}

// CreateCheckout implements domain.Service.
func (s *Service) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutResponse, error) {
	amount := tier.Price(req.Tier, req.BillingPeriod)
	if amount <= 0 {
		return paymentdomain.CheckoutResponse{}, paymentdomain.ErrCheckoutFailed
	}

	charge, err := s.growClient.CreateRecurringCharge(ctx, grow.ChargeRequest{
		ExternalUserID: req.UserID,
		Description:    fmt.Sprintf("JobDeck %s (%s)", req.Tier, req.BillingPeriod),
		AmountCents:    amount,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		return paymentdomain.CheckoutResponse{}, err
	}

	return paymentdomain.CheckoutResponse{
		RedirectURL:   charge.RedirectURL,
		PageRequestID: charge.PageRequestID,
	}, nil
}

// IngestWebhook implements domain.Service. Verification and parsing belong
// to the provider adapter; routing to the lifecycle is shared.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.registry == nil || !s.registry.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.registry.NewAdapter(provider, paymentdomain.AdapterConfig{
		Config: map[string]any{"webhook_secret": s.cfg.Grow.WebhookSecret},
	})
	if err != nil {
		s.recordWebhook(ctx, provider, "rejected")
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.recordWebhook(ctx, provider, "invalid_signature")
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.recordWebhook(ctx, provider, "ignored")
			return nil
		}
		s.recordWebhook(ctx, provider, "invalid_payload")
		return err
	}

	userID, err := snowflake.ParseString(event.UserID)
	if err != nil || userID == 0 {
		s.recordWebhook(ctx, provider, "invalid_payload")
		return paymentdomain.ErrInvalidEvent
	}

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.TransactionID,
		EventType:       event.Type,
		UserID:          userID,
		Payload:         payload,
		ReceivedAt:      s.clock.Now(),
	}
	if err := s.events.Create(ctx, &record); err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}
		existing, findErr := s.events.FindOne(ctx, &paymentdomain.EventRecord{
			Provider:        provider,
			ProviderEventID: event.TransactionID,
		})
		if findErr != nil {
			return findErr
		}
		if existing == nil || existing.ProcessedAt != nil {
			s.recordWebhook(ctx, provider, "duplicate")
			return nil
		}
		// Redelivery of an event whose routing failed: run it again.
		record = *existing
	}

	if err := s.route(ctx, event); err != nil {
		s.recordWebhook(ctx, provider, "failed")
		return err
	}

	processedAt := s.clock.Now()
	if err := s.events.Update(ctx, record.ID.String(), map[string]any{"processed_at": processedAt}); err != nil {
		return err
	}
	s.recordWebhook(ctx, provider, "processed")
	return nil
}

func (s *Service) route(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if event.Type == paymentdomain.EventTypePaymentFailed {
		err := s.subscriptions.HandlePaymentFailure(ctx, event.UserID)
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) || errors.Is(err, subscriptiondomain.ErrNotActive) {
			// Failure notice for a user with nothing left to suspend.
			return nil
		}
		return err
	}

	subscription, err := s.subscriptions.GetByUserID(ctx, event.UserID)
	if err != nil {
		return err
	}

	if isRenewal(subscription, event) {
		_, err = s.subscriptions.Renew(ctx, subscriptiondomain.RenewRequest{UserID: event.UserID})
	} else {
		_, err = s.subscriptions.Activate(ctx, subscriptiondomain.ActivateRequest{
			UserID:               event.UserID,
			Tier:                 event.Tier,
			BillingPeriod:        event.BillingPeriod,
			GrowTransactionToken: &event.TransactionID,
			GrowRecurringID:      nonEmpty(event.RecurringID),
		})
	}
	if err != nil {
		return err
	}

	s.issueInvoice(ctx, event)
	return nil
}

// isRenewal matches a recurring charge against the live subscription. Any
// mismatch in tier or period means the user checked out again, which is an
// activation. Only Active rows renew: a charge that clears while the row is
// PastDue or Expired goes through Activate, which converts any state.
func isRenewal(subscription *subscriptiondomain.Subscription, event *paymentdomain.PaymentEvent) bool {
	if subscription == nil || subscription.Tier == nil || subscription.BillingPeriod == nil {
		return false
	}
	if subscription.Status != subscriptiondomain.StatusActive {
		return false
	}
	if event.RecurringID == "" || subscription.GrowRecurringID == nil || *subscription.GrowRecurringID != event.RecurringID {
		return false
	}
	return *subscription.Tier == event.Tier && *subscription.BillingPeriod == event.BillingPeriod
}

// issueInvoice is best-effort: the payment already went through, so a
// bookkeeping failure is logged and never bubbles up.
func (s *Service) issueInvoice(ctx context.Context, event *paymentdomain.PaymentEvent) {
	if s.invoicer == nil || event.PayerEmail == "" {
		return
	}

	name := event.PayerName
	if name == "" {
		name = event.PayerEmail
	}
	customerID, err := s.invoicer.CreateOrFindCustomer(ctx, name, event.PayerEmail)
	if err != nil {
		s.log.Warn("invoice customer lookup failed", zap.String("user_id", event.UserID), zap.Error(err))
		return
	}

	amount := event.AmountCents
	if amount <= 0 {
		amount = tier.Price(event.Tier, event.BillingPeriod)
	}
	description := fmt.Sprintf("JobDeck %s (%s)", event.Tier, event.BillingPeriod)
	if _, err := s.invoicer.CreateInvoice(ctx, customerID, description, amount); err != nil {
		s.log.Warn("invoice creation failed", zap.String("user_id", event.UserID), zap.Error(err))
	}
}

func (s *Service) recordWebhook(ctx context.Context, provider, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordWebhookEvent(ctx, provider, outcome)
}

func nonEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
