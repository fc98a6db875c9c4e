package http

import (
	"encoding/json"
	"net/http"

	appcart "github.com/calico-commerce/storefront/internal/application/cart"
	domcart "github.com/calico-commerce/storefront/internal/domain/cart"
	"github.com/calico-commerce/storefront/internal/domain/catalog"
)

type cartHandler struct {
	carts *appcart.Service
}

type cartItemRequest struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Selection catalog.Selection `json:"selection"`
}

type cartResponse struct {
	UserID   string         `json:"user_id"`
	Items    []domcart.Item `json:"items"`
	Subtotal int64          `json:"subtotal"`
}

type validateResponse struct {
	Items    []validatedItemDTO `json:"items"`
	Warnings []appcart.Warning  `json:"warnings"`
	Subtotal int64              `json:"subtotal"`
}

type validatedItemDTO struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	SKU       string            `json:"sku"`
	Quantity  int               `json:"quantity"`
	Selection catalog.Selection `json:"selection"`
	UnitPrice int64             `json:"unit_price"`
	Subtotal  int64             `json:"subtotal"`
	Backorder bool              `json:"backorder"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	items := c.Items
	if items == nil {
		items = []domcart.Item{}
	}
	return cartResponse{UserID: c.UserID, Items: items, Subtotal: c.Subtotal()}
}

func (h *cartHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	c, err := h.carts.Get(r.Context(), actor.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *cartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "product_id is required", nil)
		return
	}

	c, err := h.carts.AddItem(r.Context(), actor.UserID, req.ProductID, req.Quantity, req.Selection)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *cartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "product_id is required", nil)
		return
	}

	c, err := h.carts.UpdateItem(r.Context(), actor.UserID, req.ProductID, req.Quantity, req.Selection)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *cartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}

	c, err := h.carts.RemoveItem(r.Context(), actor.UserID, req.ProductID, req.Selection)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *cartHandler) clear(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), actor.UserID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validate reports what checkout would see right now: refreshed prices and
// availability warnings, without touching stock.
func (h *cartHandler) validate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	c, err := h.carts.Get(r.Context(), actor.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := h.carts.Validate(r.Context(), c)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := validateResponse{
		Items:    make([]validatedItemDTO, len(res.Items)),
		Warnings: res.Warnings,
		Subtotal: res.Subtotal,
	}
	if out.Warnings == nil {
		out.Warnings = []appcart.Warning{}
	}
	for i, it := range res.Items {
		out.Items[i] = validatedItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			Selection: it.Selection,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
			Backorder: it.Backorder,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
