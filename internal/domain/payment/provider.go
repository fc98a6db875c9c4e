package payment

import (
	"context"

	"github.com/calico-commerce/storefront/internal/domain/order"
)

// Intent is a provider payment intent handed back to the client for
// confirmation.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
}

type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentFailed          IntentStatus = "failed"
)

// Provider is the outbound port onto the payment provider. Signature
// verification of inbound webhooks happens before payloads reach the core
// and is not part of this port.
type Provider interface {
	CreateIntent(ctx context.Context, orderID string, amount int64, method order.PaymentMethod) (*Intent, error)
	// RetrieveIntent reports the provider-side status plus the settled
	// transaction id when the intent succeeded.
	RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, string, error)
	Refund(ctx context.Context, intentID string, amount int64) (string, error)
}
