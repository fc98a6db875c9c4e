package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	componentCheckout   = "checkout_service"
	useCaseCreateOrder  = "checkout.create_order"
	spanCreateFromCart  = "UC.CreateFromCart"
	eventPublishTimeout = 300 * time.Millisecond
)

// Service turns a validated cart into an immutable order. The stock
// decrement, the order insert, and the cart clear commit as one
// transaction; a lost stock race aborts the whole thing with no partial
// state.
type Service struct {
	txr       TxRunner
	cartSvc   *appcart.Service
	carts     domcart.Repository
	ids       IDGenerator
	numbers   NumberGenerator
	publisher outbox.Publisher

	tel         observability.Telemetry
	log         observability.Logger
	reqCounter  observability.Counter
	durHist     observability.Histogram
	conflicts   observability.Counter
	pubFailures observability.Counter
}

func NewService(
	txr TxRunner,
	cartSvc *appcart.Service,
	carts domcart.Repository,
	ids IDGenerator,
	numbers NumberGenerator,
	publisher outbox.Publisher,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		txr:         txr,
		cartSvc:     cartSvc,
		carts:       carts,
		ids:         ids,
		numbers:     numbers,
		publisher:   publisher,
		tel:         tel,
		log:         tel.Logger().With(observability.F("component", componentCheckout)),
		reqCounter:  tel.Counter(observability.MUsecaseRequests),
		durHist:     tel.Histogram(observability.MUsecaseDuration),
		conflicts:   tel.Counter(observability.MStockConflicts),
		pubFailures: tel.Counter(observability.MEventPublishFailures),
	}
}

type CreateOrderInput struct {
	Shipping     order.ShippingInfo
	Method       order.PaymentMethod
	Tax          int64
	ShippingCost int64
	Discount     int64
}

// CreateFromCart runs the checkout pipeline:
//
//  1. revalidate the cart against live catalog state,
//  2. fail with ErrEmptyCart when nothing fulfillable remains,
//  3. report every unfulfillable line at once via
//     *CartItemsUnavailableError (the transaction is never attempted),
//  4. atomically decrement stock for all lines, insert the order, and
//     clear the cart.
//
// A transaction aborted by a concurrent buyer surfaces as ErrStockConflict
// so the caller can re-validate and retry once.
func (s *Service) CreateFromCart(ctx context.Context, userID string, in CreateOrderInput) (_ *order.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseCreateOrder))

	ctx, span := s.tel.Tracer().Start(ctx, spanCreateFromCart,
		attribute.String("use_case", useCaseCreateOrder),
		attribute.String("order.user_id", userID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		lat := time.Since(start).Seconds()
		s.reqCounter.Add(1,
			observability.L("use_case", useCaseCreateOrder),
			observability.L("outcome", outcome),
		)
		s.durHist.Observe(lat, observability.L("use_case", useCaseCreateOrder))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if userID == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, errors.New("checkout: user id is required")
	}

	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, domcart.ErrNotFound) {
		outcome, statusText = "error", "EMPTY_CART"
		return nil, ErrEmptyCart
	}
	if err != nil {
		outcome, statusText = "error", "CART_LOAD_FAILED"
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}

	res, err := s.cartSvc.Validate(ctx, c)
	if err != nil {
		outcome, statusText = "error", "VALIDATION_FAILED"
		return nil, err
	}
	if len(res.Items) == 0 && len(res.Warnings) == 0 {
		outcome, statusText = "error", "EMPTY_CART"
		return nil, ErrEmptyCart
	}

	// Validation warnings are advisory for the cart UI but hard failures
	// here: checkout never silently drops or shrinks a line the user asked
	// for. Every violation is collected before failing.
	if violations := violationsFrom(c, res.Warnings); len(violations) > 0 {
		outcome, statusText = "error", "ITEMS_UNAVAILABLE"
		return nil, &CartItemsUnavailableError{Violations: violations}
	}

	items := make([]order.LineItem, len(res.Items))
	decrements := make([]inventory.ItemRequest, len(res.Items))
	for i, it := range res.Items {
		items[i] = order.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
			Selection: it.Selection,
		}
		decrements[i] = inventory.ItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Selection: it.Selection,
		}
	}

	entity, err := order.New(s.ids.NewID(), s.numbers.Next(), userID, items, in.Shipping, in.Tax, in.ShippingCost, in.Discount)
	if err != nil {
		outcome, statusText = "error", "ORDER_CONSTRUCTION_FAILED"
		return nil, err
	}
	if in.Method != "" {
		entity.Payment.Method = in.Method
	}

	run := func() error {
		return s.txr.RunInTx(ctx, func(tx Tx) error {
			if err := tx.Stock().BatchDecrement(ctx, decrements); err != nil {
				var batchErr *inventory.BatchError
				if errors.As(err, &batchErr) {
					return fmt.Errorf("%w: %w", ErrStockConflict, batchErr)
				}
				return err
			}
			if err := tx.Orders().Insert(ctx, entity); err != nil {
				return fmt.Errorf("checkout: insert order: %w", err)
			}
			if err := tx.Carts().Delete(ctx, userID); err != nil && !errors.Is(err, domcart.ErrNotFound) {
				return fmt.Errorf("checkout: clear cart: %w", err)
			}
			return nil
		})
	}

	txErr := run()
	if errors.Is(txErr, order.ErrConflict) {
		// Number collision. The failed insert aborts the whole SQL
		// transaction, so regenerate once and rerun on a fresh one.
		entity.Number = s.numbers.Next()
		txErr = run()
	}
	if txErr != nil {
		if errors.Is(txErr, ErrStockConflict) {
			outcome, statusText = "error", "STOCK_CONFLICT"
			s.conflicts.Add(1, observability.L("use_case", useCaseCreateOrder))
		} else {
			outcome, statusText = "error", "TX_FAILED"
		}
		return nil, txErr
	}

	span.SetAttributes(attribute.String("order.id", entity.ID))
	s.publish(ctx, order.NewOrderCreatedEvent(entity))

	logger.Info("order_created",
		observability.F("order_id", entity.ID),
		observability.F("order_number", entity.Number),
		observability.F("total", entity.Total),
	)
	return entity, nil
}

func (s *Service) publish(ctx context.Context, e outbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		s.pubFailures.Add(1, observability.L("event", e.EventName()))
		s.log.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

// violationsFrom turns blocking validation warnings into checkout
// violations, keeping the user's originally requested quantities. Lines
// are matched on (product, selection): the same product may appear twice
// under different variant choices.
func violationsFrom(c *domcart.Cart, warnings []appcart.Warning) []Violation {
	var out []Violation
	for _, w := range warnings {
		requested := 0
		for _, it := range c.Items {
			if it.ProductID == w.ProductID && it.Selection.Equal(w.Selection) {
				requested = it.Quantity
				break
			}
		}
		switch w.Code {
		case appcart.WarnUnavailable:
			out = append(out, Violation{
				ProductID: w.ProductID,
				Selection: w.Selection,
				Requested: requested,
				Reason:    ReasonUnavailable,
			})
		case appcart.WarnOutOfStock:
			out = append(out, Violation{
				ProductID: w.ProductID,
				Selection: w.Selection,
				Requested: requested,
				Reason:    ReasonInsufficientStock,
			})
		case appcart.WarnQuantityAdjusted:
			out = append(out, Violation{
				ProductID: w.ProductID,
				Selection: w.Selection,
				Requested: requested,
				Available: w.Quantity,
				Reason:    ReasonInsufficientStock,
			})
		}
	}
	return out
}
