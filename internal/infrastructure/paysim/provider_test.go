package paysim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/payment"
)

func TestIntentSettlesOnceAndReplays(t *testing.T) {
	p := New(0)
	ctx := context.Background()

	intent, err := p.CreateIntent(ctx, "ord-1", 2500, order.MethodCard)
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ID)
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, int64(2500), intent.Amount)

	status, txn, err := p.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.IntentSucceeded, status)
	require.NotEmpty(t, txn)

	// Later retrievals replay the settled outcome, same transaction id.
	status2, txn2, err := p.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, status, status2)
	assert.Equal(t, txn, txn2)
}

func TestFailRateOneAlwaysFails(t *testing.T) {
	p := New(1)
	ctx := context.Background()

	intent, err := p.CreateIntent(ctx, "ord-1", 1000, order.MethodCard)
	require.NoError(t, err)

	status, txn, err := p.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.IntentFailed, status)
	assert.Empty(t, txn)

	_, err = p.Refund(ctx, intent.ID, 1000)
	assert.Error(t, err)
}

func TestRefundRequiresSettledSuccess(t *testing.T) {
	p := New(0)
	ctx := context.Background()

	_, err := p.Refund(ctx, "pi_unknown", 100)
	assert.Error(t, err)

	intent, err := p.CreateIntent(ctx, "ord-1", 1000, order.MethodCard)
	require.NoError(t, err)

	// Unsettled intents cannot be refunded.
	_, err = p.Refund(ctx, intent.ID, 1000)
	assert.Error(t, err)

	txn, ok := p.Settle(intent.ID, true)
	require.True(t, ok)
	assert.NotEmpty(t, txn)

	refundID, err := p.Refund(ctx, intent.ID, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, refundID)
}
