package payment

import "context"

// EventType is a provider webhook event type. Unknown types are logged and
// acknowledged, never failed.
type EventType string

const (
	EventSucceeded EventType = "payment_intent.succeeded"
	EventFailed    EventType = "payment_intent.payment_failed"
	EventRefunded  EventType = "charge.refunded"
)

// Event is the already-verified payload of one webhook delivery. Delivery
// is at-least-once and unordered across event types.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	IntentID      string    `json:"intent_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
}

// Deduper is the idempotency layer keyed by provider event id, kept
// separate from the state transition itself so the transition stays a pure
// function of the order.
type Deduper interface {
	// Seen marks the event id processed and reports whether it had been
	// seen before, atomically.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Release removes a claim taken by Seen. Callers release the claim
	// when processing failed transiently, so the provider's redelivery of
	// the same event id is applied instead of dropped as a duplicate.
	Release(ctx context.Context, eventID string) error
}
