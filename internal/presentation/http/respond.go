package http

import (
	"encoding/json"
	"errors"
	"net/http"

	appcheckout "github.com/calico-commerce/storefront/internal/application/checkout"
	apporder "github.com/calico-commerce/storefront/internal/application/order"
	apppayment "github.com/calico-commerce/storefront/internal/application/payment"
	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
	"github.com/calico-commerce/storefront/internal/domain/inventory"
	domorder "github.com/calico-commerce/storefront/internal/domain/order"
	"github.com/calico-commerce/storefront/internal/observability"
	"github.com/calico-commerce/storefront/internal/observability/logctx"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message, Details: details}})
}

// writeDomainError maps domain and application errors onto HTTP statuses.
// Anything unmapped is a 500 with the detail kept out of the response.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unavailable  *appcheckout.CartItemsUnavailableError
		insufficient *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &unavailable):
		writeError(w, http.StatusConflict, "items_unavailable",
			"some cart items cannot be fulfilled", unavailable.Violations)
	case errors.Is(err, appcheckout.ErrStockConflict):
		writeError(w, http.StatusConflict, "stock_conflict",
			"stock changed during checkout, please retry", nil)
	case errors.As(err, &insufficient):
		writeError(w, http.StatusConflict, "insufficient_stock", insufficient.Error(), map[string]any{
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
	case errors.Is(err, appcheckout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "empty_cart", "cart has no fulfillable items", nil)

	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domcart.ErrItemNotFound),
		errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found", nil)

	case errors.Is(err, domcart.ErrBadQuantity),
		errors.Is(err, catalog.ErrSelectionBlank),
		errors.Is(err, catalog.ErrSelectionDuplicate),
		errors.Is(err, catalog.ErrSelectionIncomplete),
		errors.Is(err, catalog.ErrSelectionUnexpected),
		errors.Is(err, catalog.ErrVariantNotFound):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)

	case errors.Is(err, domorder.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", "order is already cancelled", nil)
	case errors.Is(err, domorder.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domorder.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, "already_paid", "payment already captured", nil)
	case errors.Is(err, domorder.ErrIntentMismatch):
		writeError(w, http.StatusConflict, "intent_mismatch", "payment intent does not match this order", nil)
	case errors.Is(err, domorder.ErrNotPaid):
		writeError(w, http.StatusConflict, "not_paid", "order has no captured payment", nil)
	case errors.Is(err, apppayment.ErrVerifyPending):
		writeError(w, http.StatusConflict, "payment_pending", "payment has not settled yet", nil)

	case errors.Is(err, apporder.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "admin role required", nil)

	default:
		logctx.FromOr(r.Context(), observability.NopLogger()).Error("unhandled_error",
			observability.F("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}
