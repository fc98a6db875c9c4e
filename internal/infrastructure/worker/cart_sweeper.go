// Package worker hosts the background loops: cart TTL sweeping and event
// driven notifications.
package worker

import (
	"context"
	"time"

	"github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/observability"
)

// CartSweeper periodically deletes carts whose TTL elapsed. Reads already
// treat expired carts as absent; the sweeper just reclaims the rows.
type CartSweeper struct {
	carts    cart.Repository
	interval time.Duration

	log   observability.Logger
	swept observability.Counter

	stop chan struct{}
	done chan struct{}
}

func NewCartSweeper(carts cart.Repository, interval time.Duration, tel observability.Telemetry) *CartSweeper {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CartSweeper{
		carts:    carts,
		interval: interval,
		log:      tel.Logger().With(observability.F("component", "cart_sweeper")),
		swept:    tel.Counter(observability.MCartsSwept),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *CartSweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *CartSweeper) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CartSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.carts.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("cart_sweep_failed", observability.F("error", err.Error()))
		return
	}
	if n > 0 {
		s.swept.Add(float64(n))
		s.log.Info("carts_swept", observability.F("count", n))
	}
}
