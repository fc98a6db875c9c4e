package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/calico-commerce/storefront/internal/domain/inventory"
	domain "github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"
)

const componentOrderService = "order_service"

var ErrForbidden = errors.New("order: operation requires admin role")

// Actor is the authenticated caller as supplied by the identity
// collaborator.
type Actor struct {
	UserID string
	Admin  bool
}

// Service applies order-status transitions and read access with ownership
// filtering. Mutations go through Repository.Mutate so the store's
// per-document serialization is the only concurrency control needed.
type Service struct {
	orders    domain.Repository
	ledger    inventory.Ledger
	publisher outbox.Publisher
	log       observability.Logger
}

func NewService(orders domain.Repository, ledger inventory.Ledger, publisher outbox.Publisher, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		orders:    orders,
		ledger:    ledger,
		publisher: publisher,
		log:       tel.Logger().With(observability.F("component", componentOrderService)),
	}
}

// Get returns the order when the actor owns it or is an admin. Orders
// belonging to other users read as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// List returns the actor's own orders; admins see everything, optionally
// narrowed by status.
func (s *Service) List(ctx context.Context, actor Actor, status domain.Status) ([]*domain.Order, error) {
	f := domain.Filter{Status: status}
	if !actor.Admin {
		f.UserID = actor.UserID
	}
	return s.orders.List(ctx, f)
}

// UpdateStatus is the admin path through the transition table. Tracking
// info may accompany the shipped transition.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id string, to domain.Status, tracking *domain.Tracking) (*domain.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	if !domain.ValidStatus(to) {
		return nil, domain.ErrInvalidTransition
	}
	if to == domain.StatusCancelled {
		return s.Cancel(ctx, actor, id)
	}

	logger := logctx.FromOr(ctx, s.log)
	o, err := s.orders.Mutate(ctx, id, func(o *domain.Order) error {
		if err := o.Transition(to); err != nil {
			return err
		}
		if tracking != nil && to == domain.StatusShipped {
			o.SetTracking(*tracking)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("order_status_updated",
		observability.F("order_id", id),
		observability.F("status", string(to)),
	)
	return o, nil
}

func (s *Service) AddNote(ctx context.Context, actor Actor, id, note string) (*domain.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.orders.Mutate(ctx, id, func(o *domain.Order) error {
		o.AddNote(note)
		return nil
	})
}

// Cancel moves the order to cancelled and restores each line's stock at
// most once. The restoration guard flips inside the serialized mutate, so
// a cancellation racing another cancellation can never double-restore:
// the loser fails with ErrAlreadyCancelled before any ledger call. When
// every ledger restore fails (the ledger was unreachable), the claim is
// released again, so re-cancelling the order retries the restock instead
// of losing it.
func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (*domain.Order, error) {
	logger := logctx.FromOr(ctx, s.log)

	if !actor.Admin {
		// Owners may cancel their own orders; the ownership read uses the
		// same not-found masking as Get.
		if _, err := s.Get(ctx, actor, id); err != nil {
			return nil, err
		}
	}

	restore, resumed := false, false
	o, err := s.orders.Mutate(ctx, id, func(o *domain.Order) error {
		cerr := o.Cancel()
		if errors.Is(cerr, domain.ErrAlreadyCancelled) && !o.StockRestored {
			// An earlier cancellation committed but its restock never
			// reached the ledger; claim it again.
			resumed = true
			restore = o.MarkStockRestored()
			return nil
		}
		if cerr != nil {
			return cerr
		}
		restore = o.MarkStockRestored()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restore {
		failed := 0
		for _, it := range o.Items {
			req := inventory.ItemRequest{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Selection: it.Selection,
			}
			if err := s.ledger.Restore(ctx, req); err != nil {
				// The order is already cancelled; a vanished product only
				// loses its restock, it cannot fail the cancellation.
				failed++
				logger.Warn("stock_restore_failed",
					observability.F("order_id", id),
					observability.F("product_id", it.ProductID),
					observability.F("error", err.Error()),
				)
			}
		}
		if failed == len(o.Items) {
			// Nothing was restored, so releasing the claim cannot
			// double-restore anything.
			released, merr := s.orders.Mutate(ctx, id, func(o *domain.Order) error {
				o.ClearStockRestored()
				return nil
			})
			if merr != nil {
				logger.Error("stock_restore_release_failed",
					observability.F("order_id", id),
					observability.F("error", merr.Error()),
				)
			} else {
				o = released
			}
		}
	}

	if s.publisher != nil && !resumed {
		if err := s.publisher.Publish(context.WithoutCancel(ctx), domain.NewOrderCancelledEvent(o)); err != nil {
			logger.Warn("event_publish_failed",
				observability.F("event", "order.cancelled"),
				observability.F("error", err.Error()),
			)
		}
	}

	logger.Info("order_cancelled",
		observability.F("order_id", id),
		observability.F("stock_restored", o.StockRestored),
		observability.F("restock_resumed", resumed),
	)
	return o, nil
}

// Track records carrier details outside a status change, e.g. a corrected
// tracking number after shipment.
func (s *Service) Track(ctx context.Context, actor Actor, id string, t domain.Tracking) (*domain.Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	if t.Number == "" {
		return nil, fmt.Errorf("order: tracking number is required")
	}
	return s.orders.Mutate(ctx, id, func(o *domain.Order) error {
		o.SetTracking(t)
		return nil
	})
}
