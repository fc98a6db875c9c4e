// Package http exposes the checkout core over REST. Authentication happens
// upstream; the gateway forwards the resolved identity in X-User-ID and
// X-User-Role headers.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	appcheckout "github.com/calico-commerce/storefront/internal/application/checkout"
	apporder "github.com/calico-commerce/storefront/internal/application/order"
	apppayment "github.com/calico-commerce/storefront/internal/application/payment"
	"github.com/calico-commerce/storefront/internal/observability"
)

type Services struct {
	Carts    *appcart.Service
	Checkout *appcheckout.Service
	Orders   *apporder.Service
	Payments *apppayment.Service
}

func NewRouter(svc Services, tel observability.Telemetry) *chi.Mux {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(telemetryMiddleware(tel))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	carts := &cartHandler{carts: svc.Carts}
	orders := &orderHandler{checkout: svc.Checkout, orders: svc.Orders}
	payments := &paymentHandler{payments: svc.Payments}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.get)
			r.Delete("/", carts.clear)
			r.Get("/validate", carts.validate)
			r.Post("/items", carts.addItem)
			r.Put("/items", carts.updateItem)
			r.Delete("/items", carts.removeItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orders.create)
			r.Get("/", orders.list)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", orders.get)
				r.Put("/status", orders.updateStatus)
				r.Post("/cancel", orders.cancel)
				r.Post("/notes", orders.addNote)
				r.Put("/tracking", orders.track)

				r.Post("/payment/intent", payments.createIntent)
				r.Post("/payment/verify", payments.verify)
				r.Post("/payment/refund", payments.refund)
			})
		})

		r.Post("/webhooks/payment", payments.webhook)
	})

	return r
}
