// Package paysim is an in-process payment provider used for demos and
// tests. Intents settle on first retrieval, succeeding or failing
// according to a configurable failure rate.
package paysim

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/payment"
)

var (
	errUnknownIntent = fmt.Errorf("paysim: unknown intent")
	errNotSucceeded  = fmt.Errorf("paysim: refund requires a succeeded intent")
)

type intentState struct {
	status        payment.IntentStatus
	transactionID string
	amount        int64
	orderID       string
}

type Provider struct {
	mu       sync.Mutex
	rng      *rand.Rand
	failRate float64
	intents  map[string]*intentState
}

// New builds a simulator whose retrievals fail with probability failRate
// (clamped to [0, 1]).
func New(failRate float64) *Provider {
	if failRate < 0 {
		failRate = 0
	}
	if failRate > 1 {
		failRate = 1
	}
	return &Provider{
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		failRate: failRate,
		intents:  make(map[string]*intentState),
	}
}

func (p *Provider) CreateIntent(ctx context.Context, orderID string, amount int64, method order.PaymentMethod) (*payment.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = method

	p.mu.Lock()
	defer p.mu.Unlock()

	id := "pi_" + token()
	p.intents[id] = &intentState{
		status:  payment.IntentRequiresPayment,
		amount:  amount,
		orderID: orderID,
	}
	return &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + token(),
		Amount:       amount,
	}, nil
}

func (p *Provider) RetrieveIntent(ctx context.Context, intentID string) (payment.IntentStatus, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.intents[intentID]
	if !ok {
		return "", "", errUnknownIntent
	}

	// First retrieval settles the intent; later ones replay the outcome.
	if st.status == payment.IntentRequiresPayment {
		if p.rng.Float64() < p.failRate {
			st.status = payment.IntentFailed
		} else {
			st.status = payment.IntentSucceeded
			st.transactionID = "txn_" + token()
		}
	}
	return st.status, st.transactionID, nil
}

func (p *Provider) Refund(ctx context.Context, intentID string, amount int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_ = amount

	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.intents[intentID]
	if !ok {
		return "", errUnknownIntent
	}
	if st.status != payment.IntentSucceeded {
		return "", errNotSucceeded
	}
	return "re_" + token(), nil
}

// Settle forces an intent's outcome, letting tests and demo drivers script
// the provider instead of rolling the dice.
func (p *Provider) Settle(intentID string, succeed bool) (transactionID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, exists := p.intents[intentID]
	if !exists {
		return "", false
	}
	if succeed {
		st.status = payment.IntentSucceeded
		if st.transactionID == "" {
			st.transactionID = "txn_" + token()
		}
		return st.transactionID, true
	}
	st.status = payment.IntentFailed
	return "", true
}

func token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
