package order

import (
	"errors"
	"time"
)

var (
	ErrAlreadyPaid    = errors.New("order: payment already captured")
	ErrIntentMismatch = errors.New("order: payment intent mismatch")
	ErrNotPaid        = errors.New("order: refund requires a paid payment")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// Payment is the sub-record embedded in every order. Its status moves
// monotonically: pending -> paid -> refunded, with failed as a retryable
// detour from pending. Once paid it never downgrades.
type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	IntentID      string        `json:"intent_id"`
	TransactionID string        `json:"transaction_id"`
	Amount        int64         `json:"amount"`
	PaidAt        time.Time     `json:"paid_at"`
	RefundedAt    time.Time     `json:"refunded_at"`
}

// AttachIntent persists the provider intent on the order before the intent
// is handed to the client, so later webhooks can be correlated.
func (o *Order) AttachIntent(method PaymentMethod, intentID string, amount int64) error {
	if o.Payment.Status == PaymentPaid {
		return ErrAlreadyPaid
	}
	o.Payment.Method = method
	o.Payment.IntentID = intentID
	o.Payment.Amount = amount
	o.touch()
	return nil
}

// MarkPaid applies a successful payment. It is idempotent: a duplicate
// call is a no-op reporting changed=false, with paidAt and processingAt
// left exactly as the first call stamped them. A paid transition also
// advances a pending order to processing.
func (o *Order) MarkPaid(transactionID string) (changed bool, err error) {
	switch o.Payment.Status {
	case PaymentPaid:
		return false, nil
	case PaymentRefunded:
		// Monotonic: a replayed success after refund never reopens.
		return false, nil
	case PaymentCancelled:
		return false, ErrInvalidTransition
	}

	o.Payment.Status = PaymentPaid
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	stampOnce(&o.Payment.PaidAt)

	if o.Status == StatusPending {
		if err := o.Transition(StatusProcessing); err != nil {
			return true, err
		}
	}
	o.touch()
	return true, nil
}

// MarkPaymentFailed records a failed payment attempt. Once paid (or
// refunded) a late failure event is ignored, never a downgrade.
func (o *Order) MarkPaymentFailed() (changed bool) {
	switch o.Payment.Status {
	case PaymentPaid, PaymentRefunded, PaymentCancelled:
		return false
	}
	if o.Payment.Status == PaymentFailed {
		return false
	}
	o.Payment.Status = PaymentFailed
	o.touch()
	return true
}

// MarkRefunded is only permitted from paid and stamps refundedAt once.
func (o *Order) MarkRefunded() error {
	if o.Payment.Status == PaymentRefunded {
		return nil
	}
	if o.Payment.Status != PaymentPaid {
		return ErrNotPaid
	}
	o.Payment.Status = PaymentRefunded
	stampOnce(&o.Payment.RefundedAt)
	o.touch()
	return nil
}
