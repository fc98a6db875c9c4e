package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("ord-1", "ORD-20260828-AAAAAA", "user-1", []LineItem{
		{ProductID: "p1", Name: "Mug", SKU: "MUG-1", UnitPrice: 500, Quantity: 2, Subtotal: 1000},
	}, ShippingInfo{Name: "A", Address: "B"}, 100, 50, 0)
	require.NoError(t, err)
	return o
}

func TestNewEnforcesTotals(t *testing.T) {
	_, err := New("ord-1", "N", "u", nil, ShippingInfo{}, 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = New("ord-1", "N", "u", []LineItem{
		{ProductID: "p1", UnitPrice: 500, Quantity: 2, Subtotal: 900},
	}, ShippingInfo{}, 0, 0, 0)
	assert.Error(t, err)

	o := testOrder(t)
	assert.Equal(t, int64(1000), o.Subtotal)
	assert.Equal(t, int64(1150), o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.Payment.Status)
	assert.Equal(t, o.Total, o.Payment.Amount)
}

func TestTransitionHappyPath(t *testing.T) {
	o := testOrder(t)

	require.NoError(t, o.Transition(StatusProcessing))
	require.NoError(t, o.Transition(StatusShipped))
	require.NoError(t, o.Transition(StatusDelivered))

	assert.Equal(t, StatusDelivered, o.Status)
	assert.False(t, o.ProcessingAt.IsZero())
	assert.False(t, o.ShippedAt.IsZero())
	assert.False(t, o.DeliveredAt.IsZero())
	assert.True(t, o.CancelledAt.IsZero())
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
	}{
		{StatusPending, StatusShipped},
		{StatusPending, StatusDelivered},
		{StatusProcessing, StatusDelivered},
		{StatusProcessing, StatusPending},
		{StatusShipped, StatusProcessing},
		{StatusDelivered, StatusShipped},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusProcessing},
	}
	for _, tc := range cases {
		o := testOrder(t)
		o.Status = tc.from
		assert.ErrorIs(t, o.Transition(tc.to), ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestCancelOnCancelledIsDistinct(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.Cancel())
	assert.ErrorIs(t, o.Cancel(), ErrAlreadyCancelled)
	assert.ErrorIs(t, o.Transition(StatusCancelled), ErrAlreadyCancelled)
}

func TestCancelFromEveryActiveState(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusProcessing, StatusShipped} {
		o := testOrder(t)
		o.Status = from
		require.NoError(t, o.Cancel(), "from %s", from)
		assert.Equal(t, StatusCancelled, o.Status)
		assert.False(t, o.CancelledAt.IsZero())
	}
}

func TestCancelMarksPendingPaymentCancelled(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.Cancel())
	assert.Equal(t, PaymentCancelled, o.Payment.Status)

	paid := testOrder(t)
	_, err := paid.MarkPaid("txn-1")
	require.NoError(t, err)
	require.NoError(t, paid.Cancel())
	assert.Equal(t, PaymentPaid, paid.Payment.Status)
}

func TestTimestampsStampOnce(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.Transition(StatusProcessing))
	first := o.ProcessingAt
	require.False(t, first.IsZero())

	// Re-entering processing is not a legal edge, but the stamp guard is
	// also what keeps MarkPaid's processing hop from overwriting it.
	time.Sleep(5 * time.Millisecond)
	_, err := o.MarkPaid("txn-1")
	require.NoError(t, err)
	assert.Equal(t, first, o.ProcessingAt)
}

func TestMarkStockRestoredFlipsOnce(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.Cancel())
	assert.True(t, o.MarkStockRestored())
	assert.False(t, o.MarkStockRestored())
	assert.False(t, o.MarkStockRestored())
}

func TestMarkPaidIdempotent(t *testing.T) {
	o := testOrder(t)

	changed, err := o.MarkPaid("txn-1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentPaid, o.Payment.Status)
	assert.Equal(t, "txn-1", o.Payment.TransactionID)
	assert.Equal(t, StatusProcessing, o.Status)
	firstPaidAt := o.Payment.PaidAt
	require.False(t, firstPaidAt.IsZero())

	time.Sleep(5 * time.Millisecond)
	changed, err = o.MarkPaid("txn-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, firstPaidAt, o.Payment.PaidAt)
}

func TestFailedAfterPaidNeverDowngrades(t *testing.T) {
	o := testOrder(t)
	_, err := o.MarkPaid("txn-1")
	require.NoError(t, err)

	assert.False(t, o.MarkPaymentFailed())
	assert.Equal(t, PaymentPaid, o.Payment.Status)
}

func TestPaidAfterFailedRecovers(t *testing.T) {
	o := testOrder(t)
	assert.True(t, o.MarkPaymentFailed())
	assert.Equal(t, PaymentFailed, o.Payment.Status)

	changed, err := o.MarkPaid("txn-2")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentPaid, o.Payment.Status)
}

func TestRefundRequiresPaid(t *testing.T) {
	o := testOrder(t)
	assert.ErrorIs(t, o.MarkRefunded(), ErrNotPaid)

	_, err := o.MarkPaid("txn-1")
	require.NoError(t, err)
	require.NoError(t, o.MarkRefunded())
	assert.Equal(t, PaymentRefunded, o.Payment.Status)
	first := o.Payment.RefundedAt
	require.False(t, first.IsZero())

	// Idempotent, and a replayed success after refund never reopens.
	require.NoError(t, o.MarkRefunded())
	assert.Equal(t, first, o.Payment.RefundedAt)
	changed, err := o.MarkPaid("txn-1")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, PaymentRefunded, o.Payment.Status)
}

func TestAttachIntentRejectedOncePaid(t *testing.T) {
	o := testOrder(t)
	require.NoError(t, o.AttachIntent(MethodCard, "pi_1", o.Total))
	assert.Equal(t, "pi_1", o.Payment.IntentID)

	_, err := o.MarkPaid("txn-1")
	require.NoError(t, err)
	assert.ErrorIs(t, o.AttachIntent(MethodCard, "pi_2", o.Total), ErrAlreadyPaid)
}
