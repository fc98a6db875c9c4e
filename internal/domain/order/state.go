package order

import "errors"

var (
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrAlreadyCancelled  = errors.New("order: already cancelled")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions is the explicit edge list of the order lifecycle. Anything
// not listed is rejected with ErrInvalidTransition.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

func (o *Order) CanTransition(to Status) bool {
	for _, next := range transitions[o.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the given status, stamping the associated
// timestamp exactly once. Cancelling an already-cancelled order reports
// ErrAlreadyCancelled so callers can distinguish the idempotency guard
// from a plain illegal edge.
func (o *Order) Transition(to Status) error {
	if to == StatusCancelled && o.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if !o.CanTransition(to) {
		return ErrInvalidTransition
	}

	o.Status = to
	switch to {
	case StatusProcessing:
		stampOnce(&o.ProcessingAt)
	case StatusShipped:
		stampOnce(&o.ShippedAt)
	case StatusDelivered:
		stampOnce(&o.DeliveredAt)
	case StatusCancelled:
		stampOnce(&o.CancelledAt)
	}
	o.touch()
	return nil
}

// Cancel transitions to cancelled and marks a still-pending payment as
// cancelled. Stock restoration is the caller's job, guarded by
// MarkStockRestored.
func (o *Order) Cancel() error {
	if err := o.Transition(StatusCancelled); err != nil {
		return err
	}
	if o.Payment.Status == PaymentPending {
		o.Payment.Status = PaymentCancelled
	}
	return nil
}

// MarkStockRestored flips the restoration flag, reporting whether this
// call was the first. The flag is what makes cancellation restore each
// line's stock at most once.
func (o *Order) MarkStockRestored() bool {
	if o.StockRestored {
		return false
	}
	o.StockRestored = true
	o.touch()
	return true
}

// ClearStockRestored releases the restoration claim when the restock
// never reached the ledger, so a later cancellation can retry it.
func (o *Order) ClearStockRestored() {
	if !o.StockRestored {
		return
	}
	o.StockRestored = false
	o.touch()
}
