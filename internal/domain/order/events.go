package order

import "time"

// OrderCreatedEvent is emitted after the checkout transaction commits.
type OrderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	Number     string    `json:"number"`
	UserID     string    `json:"user_id"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		UserID:     o.UserID,
		Total:      o.Total,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderCancelledEvent is emitted once per cancellation, after stock has
// been handed back to the ledger.
type OrderCancelledEvent struct {
	OrderID    string    `json:"order_id"`
	Number     string    `json:"number"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCancelledEvent) EventName() string { return "order.cancelled" }

func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		UserID:     o.UserID,
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentCapturedEvent is emitted on the first (and only the first)
// successful paid transition for an order.
type PaymentCapturedEvent struct {
	OrderID    string    `json:"order_id"`
	IntentID   string    `json:"intent_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentCapturedEvent) EventName() string { return "payment.captured" }

func NewPaymentCapturedEvent(o *Order) PaymentCapturedEvent {
	return PaymentCapturedEvent{
		OrderID:    o.ID,
		IntentID:   o.Payment.IntentID,
		Amount:     o.Payment.Amount,
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentRefundedEvent is emitted when a refund is applied.
type PaymentRefundedEvent struct {
	OrderID    string    `json:"order_id"`
	IntentID   string    `json:"intent_id"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (PaymentRefundedEvent) EventName() string { return "payment.refunded" }

func NewPaymentRefundedEvent(o *Order, amount int64) PaymentRefundedEvent {
	return PaymentRefundedEvent{
		OrderID:    o.ID,
		IntentID:   o.Payment.IntentID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}
