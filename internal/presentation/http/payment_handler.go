package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apppayment "github.com/calico-commerce/storefront/internal/application/payment"
	dompay "github.com/calico-commerce/storefront/internal/domain/payment"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"

	domorder "github.com/calico-commerce/storefront/internal/domain/order"
)

type paymentHandler struct {
	payments *apppayment.Service
}

type createIntentRequest struct {
	Method domorder.PaymentMethod `json:"method"`
}

type verifyRequest struct {
	IntentID string `json:"intent_id"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

func (h *paymentHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), chi.URLParam(r, "orderID"), req.Method)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *paymentHandler) verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "intent_id is required", nil)
		return
	}

	o, err := h.payments.Verify(r.Context(), chi.URLParam(r, "orderID"), req.IntentID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *paymentHandler) refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !actor.Admin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required", nil)
		return
	}
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}

	o, err := h.payments.Refund(r.Context(), chi.URLParam(r, "orderID"), req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

// webhook ingests provider events. Payload signatures are verified by the
// gateway before the request reaches this handler. Only transient
// processing failures surface here and return 500 so the provider
// redelivers; duplicates, unknown orders, and deterministic conflicts are
// already acknowledged inside HandleEvent.
func (h *paymentHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var evt dompay.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed webhook payload", nil)
		return
	}
	if evt.IntentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "intent_id is required", nil)
		return
	}

	if err := h.payments.HandleEvent(r.Context(), evt); err != nil {
		logctx.FromOr(r.Context(), observability.NopLogger()).Error("webhook_processing_failed",
			observability.F("event_id", evt.ID),
			observability.F("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal", "event processing failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"received": evt.ID})
}
