package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	appcheckout "github.com/calico-commerce/storefront/internal/application/checkout"
	apporder "github.com/calico-commerce/storefront/internal/application/order"
	apppayment "github.com/calico-commerce/storefront/internal/application/payment"
	"github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	"github.com/calico-commerce/storefront/internal/domain/order"
	domoutbox "github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/domain/payment"
	"github.com/calico-commerce/storefront/internal/infrastructure/id"
	"github.com/calico-commerce/storefront/internal/infrastructure/memory"
	"github.com/calico-commerce/storefront/internal/infrastructure/messaging"
	"github.com/calico-commerce/storefront/internal/infrastructure/observability/oteltrace"
	"github.com/calico-commerce/storefront/internal/infrastructure/observability/prometrics"
	"github.com/calico-commerce/storefront/internal/infrastructure/observability/telemetry"
	"github.com/calico-commerce/storefront/internal/infrastructure/observability/zaplogger"
	infraoutbox "github.com/calico-commerce/storefront/internal/infrastructure/outbox"
	"github.com/calico-commerce/storefront/internal/infrastructure/paysim"
	"github.com/calico-commerce/storefront/internal/infrastructure/postgres"
	"github.com/calico-commerce/storefront/internal/infrastructure/worker"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/pkg/config"
	httpapi "github.com/calico-commerce/storefront/internal/presentation/http"
)

// storage is what both backends provide: repositories plus the checkout
// transaction runner.
type storage interface {
	appcheckout.TxRunner
	Catalog() catalog.Repository
	Carts() cart.Repository
	Orders() order.Repository
	Ledger() inventory.Ledger
	Deduper() payment.Deduper
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := zaplogger.MustNew(cfg.LogFile,
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	defer syncLogger(logger)

	reg := prometrics.NewRegistry("storefront", nil)
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), logger, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Error("storage_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	publisher, bus, pubCleanup, err := buildPublisher(cfg, tel)
	if err != nil {
		logger.Error("publisher_init_failed", observability.F("error", err.Error()))
		os.Exit(1)
	}
	defer pubCleanup()

	if bus != nil {
		worker.NewNotifier(tel).Register(bus)
		bus.Start()
	}

	cartSvc := appcart.NewService(store.Carts(), store.Catalog(), store.Ledger(), cfg.CartTTL, tel)
	checkoutSvc := appcheckout.NewService(
		store, cartSvc, store.Carts(),
		id.UUIDGenerator{}, id.OrderNumberGenerator{},
		publisher, tel,
	)
	orderSvc := apporder.NewService(store.Orders(), store.Ledger(), publisher, tel)
	paymentSvc := apppayment.NewService(store.Orders(), paysim.New(cfg.PaymentFailRate), store.Deduper(), publisher, tel)

	sweeper := worker.NewCartSweeper(store.Carts(), cfg.CartSweepInterval, tel)
	sweeper.Start()

	router := httpapi.NewRouter(httpapi.Services{
		Carts:    cartSvc,
		Checkout: checkoutSvc,
		Orders:   orderSvc,
		Payments: paymentSvc,
	}, tel)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_started", observability.F("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", observability.F("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server_shutdown_failed", observability.F("error", err.Error()))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.Warn("sweeper_shutdown_failed", observability.F("error", err.Error()))
	}
	if bus != nil {
		if err := bus.Stop(shutdownCtx); err != nil {
			logger.Warn("bus_shutdown_failed", observability.F("error", err.Error()))
		}
	}
	logger.Info("server_stopped")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage, func(), error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := memory.NewStore()
		store.SeedProducts(demoProducts()...)
		return store, func() {}, nil
	}
}

// buildPublisher selects the broker-backed publisher when AMQP_URL is set,
// otherwise the in-process bus (which also hosts local subscribers).
func buildPublisher(cfg *config.Config, tel observability.Telemetry) (domoutbox.Publisher, *infraoutbox.Bus, func(), error) {
	if cfg.AMQPURL != "" {
		pub, err := messaging.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, tel)
		if err != nil {
			return nil, nil, nil, err
		}
		return pub, nil, func() { _ = pub.Close() }, nil
	}
	bus := infraoutbox.NewBus(tel, 256, 8)
	return bus, bus, func() {}, nil
}

func syncLogger(l observability.Logger) {
	if s, ok := l.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// demoProducts stocks the in-memory catalog so the service is explorable
// out of the box.
func demoProducts() []*catalog.Product {
	return []*catalog.Product{
		{
			ID: "prod-espresso-cup", Name: "Espresso Cup", SKU: "CUP-001",
			Price: 1250, Status: catalog.StatusActive,
			TrackInventory: true, Stock: 40,
		},
		{
			ID: "prod-pour-over-kit", Name: "Pour Over Kit", SKU: "KIT-014",
			Price: 6800, Status: catalog.StatusActive,
			TrackInventory: true, AllowBackorder: true, Stock: 5,
		},
		{
			ID: "prod-gift-card", Name: "Digital Gift Card", SKU: "GFT-100",
			Price: 5000, Status: catalog.StatusActive,
			TrackInventory: false,
		},
		{
			ID: "prod-barista-tee", Name: "Barista Tee", SKU: "TEE-202",
			Price: 2900, Status: catalog.StatusActive,
			TrackInventory: true,
			Variants: []catalog.Variant{
				{Name: "color", Options: []catalog.VariantOption{
					{Value: "black", Stock: 12},
					{Value: "cream", Stock: 7},
				}},
				{Name: "size", Options: []catalog.VariantOption{
					{Value: "s", Stock: 6},
					{Value: "m", Stock: 9},
					{Value: "l", Stock: 4},
				}},
			},
		},
	}
}
