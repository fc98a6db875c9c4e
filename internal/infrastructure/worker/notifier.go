package worker

import (
	"context"

	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/observability"
)

// Notifier consumes order lifecycle events and records the notifications a
// delivery channel (mail, push) would send. It is the reference consumer
// for the event bus.
type Notifier struct {
	log observability.Logger
}

func NewNotifier(tel observability.Telemetry) *Notifier {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Notifier{log: tel.Logger().With(observability.F("component", "notifier"))}
}

func (n *Notifier) Register(sub outbox.Subscriber) {
	sub.Subscribe(order.OrderCreatedEvent{}.EventName(), n.onOrderCreated)
	sub.Subscribe(order.OrderCancelledEvent{}.EventName(), n.onOrderCancelled)
	sub.Subscribe(order.PaymentCapturedEvent{}.EventName(), n.onPaymentCaptured)
	sub.Subscribe(order.PaymentRefundedEvent{}.EventName(), n.onPaymentRefunded)
}

func (n *Notifier) onOrderCreated(ctx context.Context, e outbox.Event) error {
	_ = ctx
	ev, ok := e.(order.OrderCreatedEvent)
	if !ok {
		return nil
	}
	n.log.Info("notify_order_confirmation",
		observability.F("order_id", ev.OrderID),
		observability.F("number", ev.Number),
		observability.F("user_id", ev.UserID),
		observability.F("total", ev.Total))
	return nil
}

func (n *Notifier) onOrderCancelled(ctx context.Context, e outbox.Event) error {
	_ = ctx
	ev, ok := e.(order.OrderCancelledEvent)
	if !ok {
		return nil
	}
	n.log.Info("notify_order_cancelled",
		observability.F("order_id", ev.OrderID),
		observability.F("number", ev.Number),
		observability.F("user_id", ev.UserID))
	return nil
}

func (n *Notifier) onPaymentCaptured(ctx context.Context, e outbox.Event) error {
	_ = ctx
	ev, ok := e.(order.PaymentCapturedEvent)
	if !ok {
		return nil
	}
	n.log.Info("notify_payment_receipt",
		observability.F("order_id", ev.OrderID),
		observability.F("amount", ev.Amount))
	return nil
}

func (n *Notifier) onPaymentRefunded(ctx context.Context, e outbox.Event) error {
	_ = ctx
	ev, ok := e.(order.PaymentRefundedEvent)
	if !ok {
		return nil
	}
	n.log.Info("notify_refund_issued",
		observability.F("order_id", ev.OrderID),
		observability.F("amount", ev.Amount))
	return nil
}
