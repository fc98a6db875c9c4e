package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/outbox"
	dompay "github.com/calico-commerce/storefront/internal/domain/payment"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentPayment    = "payment_service"
	useCaseCreateIntent = "payment.create_intent"
	useCaseVerify       = "payment.verify"
	useCaseWebhook      = "payment.webhook"
	useCaseRefund       = "payment.refund"
)

var ErrVerifyPending = errors.New("payment: intent not settled yet")

// Service coordinates the payment provider with order payment state. All
// state changes funnel through the pure transition methods on the order
// entity, applied under the store's per-document serialization; duplicate
// and out-of-order webhook deliveries are therefore safe by construction.
type Service struct {
	orders    domain.Repository
	provider  dompay.Provider
	dedupe    dompay.Deduper
	publisher outbox.Publisher

	tel        observability.Telemetry
	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
	webhooks   observability.Counter
}

func NewService(orders domain.Repository, provider dompay.Provider, dedupe dompay.Deduper, publisher outbox.Publisher, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		orders:     orders,
		provider:   provider,
		dedupe:     dedupe,
		publisher:  publisher,
		tel:        tel,
		log:        tel.Logger().With(observability.F("component", componentPayment)),
		reqCounter: tel.Counter(observability.MUsecaseRequests),
		durHist:    tel.Histogram(observability.MUsecaseDuration),
		webhooks:   tel.Counter(observability.MWebhookEvents),
	}
}

// CreateIntent asks the provider for a payment intent and persists its id
// on the order before returning, so a webhook landing immediately after
// can already be correlated.
func (s *Service) CreateIntent(ctx context.Context, orderID string, method domain.PaymentMethod) (_ *dompay.Intent, err error) {
	defer s.instrument(useCaseCreateIntent, time.Now())(&err)

	ctx, span := s.tel.Tracer().Start(ctx, "UC.CreatePaymentIntent",
		attribute.String("use_case", useCaseCreateIntent),
		attribute.String("order.id", orderID),
	)
	defer func() { endSpan(span, err) }()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status == domain.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if method == "" {
		method = domain.MethodCard
	}

	intent, err := s.provider.CreateIntent(ctx, o.ID, o.Total, method)
	if err != nil {
		return nil, fmt.Errorf("payment: create intent: %w", err)
	}

	if _, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.AttachIntent(method, intent.ID, intent.Amount)
	}); err != nil {
		return nil, err
	}

	logctx.FromOr(ctx, s.log).Info("payment_intent_created",
		observability.F("order_id", orderID),
		observability.F("intent_id", intent.ID),
	)
	return intent, nil
}

// Verify confirms a client-reported payment against the provider. The
// caller-supplied intent id must match the one stored on the order, which
// shuts down replayed or confused intents.
func (s *Service) Verify(ctx context.Context, orderID, intentID string) (_ *domain.Order, err error) {
	defer s.instrument(useCaseVerify, time.Now())(&err)

	ctx, span := s.tel.Tracer().Start(ctx, "UC.VerifyPayment",
		attribute.String("use_case", useCaseVerify),
		attribute.String("order.id", orderID),
	)
	defer func() { endSpan(span, err) }()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.IntentID == "" || o.Payment.IntentID != intentID {
		return nil, domain.ErrIntentMismatch
	}

	status, transactionID, err := s.provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("payment: retrieve intent: %w", err)
	}

	switch status {
	case dompay.IntentSucceeded:
		return s.applyPaid(ctx, o.ID, transactionID)
	case dompay.IntentFailed:
		return s.applyFailed(ctx, o.ID)
	default:
		return nil, ErrVerifyPending
	}
}

// HandleEvent applies one provider webhook event. Deliveries are
// at-least-once and unordered: duplicates are dropped by event id, a
// success replay is a no-op, and a failure arriving after a success is
// ignored. Unknown orders, unknown event types, and deterministic
// transition conflicts are logged and acknowledged so the provider does
// not retry forever; only transient failures surface as errors, and those
// release the dedup claim so the redelivery is processed.
func (s *Service) HandleEvent(ctx context.Context, evt dompay.Event) (err error) {
	defer s.instrument(useCaseWebhook, time.Now())(&err)
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("event_id", evt.ID),
		observability.F("event_type", string(evt.Type)),
		observability.F("intent_id", evt.IntentID),
	)

	claimed := false
	if evt.ID != "" {
		seen, derr := s.dedupe.Seen(ctx, evt.ID)
		if derr != nil {
			return fmt.Errorf("payment: dedupe: %w", derr)
		}
		if seen {
			s.webhooks.Add(1, observability.L("event_type", string(evt.Type)), observability.L("disposition", "duplicate"))
			logger.Info("webhook_duplicate_event")
			return nil
		}
		claimed = true
	}
	// The claim outlives this call only if the event was applied or
	// deliberately acknowledged. On failure the claim is released, so the
	// redelivered event is not dropped as a duplicate.
	defer func() {
		if err == nil || !claimed {
			return
		}
		if rerr := s.dedupe.Release(context.WithoutCancel(ctx), evt.ID); rerr != nil {
			logger.Error("webhook_claim_release_failed", observability.F("error", rerr.Error()))
		}
	}()

	o, err := s.orders.FindByIntentID(ctx, evt.IntentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.webhooks.Add(1, observability.L("event_type", string(evt.Type)), observability.L("disposition", "order_not_found"))
		logger.Warn("webhook_order_not_found")
		return nil
	}
	if err != nil {
		return err
	}

	switch evt.Type {
	case dompay.EventSucceeded:
		_, err = s.applyPaid(ctx, o.ID, evt.TransactionID)
	case dompay.EventFailed:
		_, err = s.applyFailed(ctx, o.ID)
	case dompay.EventRefunded:
		err = s.applyRefunded(ctx, o.ID, evt.Amount)
	default:
		s.webhooks.Add(1, observability.L("event_type", string(evt.Type)), observability.L("disposition", "ignored"))
		logger.Info("webhook_unknown_event_type")
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Deterministic conflict, e.g. a success racing a cancellation.
		// Redelivery cannot change the outcome, so acknowledge it.
		s.webhooks.Add(1, observability.L("event_type", string(evt.Type)), observability.L("disposition", "conflict"))
		logger.Warn("webhook_transition_conflict")
		return nil
	}
	if err != nil {
		return err
	}

	s.webhooks.Add(1, observability.L("event_type", string(evt.Type)), observability.L("disposition", "applied"))
	return nil
}

// Refund is only permitted for paid orders. The provider refund runs
// first; the order is marked refunded only once the provider accepted it.
func (s *Service) Refund(ctx context.Context, orderID string, amount int64) (_ *domain.Order, err error) {
	defer s.instrument(useCaseRefund, time.Now())(&err)

	ctx, span := s.tel.Tracer().Start(ctx, "UC.RefundPayment",
		attribute.String("use_case", useCaseRefund),
		attribute.String("order.id", orderID),
	)
	defer func() { endSpan(span, err) }()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment.Status != domain.PaymentPaid {
		return nil, domain.ErrNotPaid
	}
	if amount <= 0 || amount > o.Payment.Amount {
		amount = o.Payment.Amount
	}

	if _, err := s.provider.Refund(ctx, o.Payment.IntentID, amount); err != nil {
		return nil, fmt.Errorf("payment: provider refund: %w", err)
	}

	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.MarkRefunded()
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewPaymentRefundedEvent(updated, amount))
	logctx.FromOr(ctx, s.log).Info("payment_refunded",
		observability.F("order_id", orderID),
		observability.F("amount", amount),
	)
	return updated, nil
}

func (s *Service) applyPaid(ctx context.Context, orderID, transactionID string) (*domain.Order, error) {
	changed := false
	o, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		var terr error
		changed, terr = o.MarkPaid(transactionID)
		return terr
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, domain.NewPaymentCapturedEvent(o))
		logctx.FromOr(ctx, s.log).Info("payment_captured",
			observability.F("order_id", orderID),
			observability.F("transaction_id", transactionID),
		)
	}
	return o, nil
}

func (s *Service) applyFailed(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		if !o.MarkPaymentFailed() && o.Payment.Status == domain.PaymentPaid {
			// Out-of-order delivery: a failed event after a success is
			// logged and dropped, never a downgrade.
			logctx.FromOr(ctx, s.log).Warn("webhook_failed_after_paid",
				observability.F("order_id", orderID),
			)
		}
		return nil
	})
	return o, err
}

func (s *Service) applyRefunded(ctx context.Context, orderID string, amount int64) error {
	o, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		return o.MarkRefunded()
	})
	if errors.Is(err, domain.ErrNotPaid) {
		// Refund webhook for an order we never saw paid; acknowledge.
		logctx.FromOr(ctx, s.log).Warn("webhook_refund_without_payment",
			observability.F("order_id", orderID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(ctx, domain.NewPaymentRefundedEvent(o, amount))
	return nil
}

func (s *Service) publish(ctx context.Context, e outbox.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

// instrument records the RED metrics for one use-case invocation.
func (s *Service) instrument(useCase string, start time.Time) func(*error) {
	return func(errp *error) {
		outcome := "success"
		if errp != nil && *errp != nil {
			outcome = "error"
		}
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHist.Observe(time.Since(start).Seconds(), observability.L("use_case", useCase))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
