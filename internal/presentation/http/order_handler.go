package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appcheckout "github.com/calico-commerce/storefront/internal/application/checkout"
	apporder "github.com/calico-commerce/storefront/internal/application/order"
	domorder "github.com/calico-commerce/storefront/internal/domain/order"
)

type orderHandler struct {
	checkout *appcheckout.Service
	orders   *apporder.Service
}

type createOrderRequest struct {
	Shipping     domorder.ShippingInfo  `json:"shipping"`
	Method       domorder.PaymentMethod `json:"payment_method"`
	Tax          int64                  `json:"tax"`
	ShippingCost int64                  `json:"shipping_cost"`
	Discount     int64                  `json:"discount"`
}

type updateStatusRequest struct {
	Status   domorder.Status    `json:"status"`
	Tracking *domorder.Tracking `json:"tracking,omitempty"`
}

type addNoteRequest struct {
	Note string `json:"note"`
}

type paymentDTO struct {
	Method        domorder.PaymentMethod `json:"method,omitempty"`
	Status        domorder.PaymentStatus `json:"status"`
	IntentID      string                 `json:"intent_id,omitempty"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	Amount        int64                  `json:"amount"`
	PaidAt        *time.Time             `json:"paid_at,omitempty"`
	RefundedAt    *time.Time             `json:"refunded_at,omitempty"`
}

type orderDTO struct {
	ID           string                `json:"id"`
	Number       string                `json:"number"`
	UserID       string                `json:"user_id"`
	Items        []domorder.LineItem   `json:"items"`
	Subtotal     int64                 `json:"subtotal"`
	Tax          int64                 `json:"tax"`
	ShippingCost int64                 `json:"shipping_cost"`
	Discount     int64                 `json:"discount"`
	Total        int64                 `json:"total"`
	Status       domorder.Status       `json:"status"`
	Payment      paymentDTO            `json:"payment"`
	Shipping     domorder.ShippingInfo `json:"shipping"`
	Tracking     *domorder.Tracking    `json:"tracking,omitempty"`
	Notes        []string              `json:"notes,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ProcessingAt *time.Time            `json:"processing_at,omitempty"`
	ShippedAt    *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time            `json:"cancelled_at,omitempty"`
}

func toOrderDTO(o *domorder.Order) orderDTO {
	dto := orderDTO{
		ID:           o.ID,
		Number:       o.Number,
		UserID:       o.UserID,
		Items:        o.Items,
		Subtotal:     o.Subtotal,
		Tax:          o.Tax,
		ShippingCost: o.ShippingCost,
		Discount:     o.Discount,
		Total:        o.Total,
		Status:       o.Status,
		Payment: paymentDTO{
			Method:        o.Payment.Method,
			Status:        o.Payment.Status,
			IntentID:      o.Payment.IntentID,
			TransactionID: o.Payment.TransactionID,
			Amount:        o.Payment.Amount,
			PaidAt:        timePtr(o.Payment.PaidAt),
			RefundedAt:    timePtr(o.Payment.RefundedAt),
		},
		Shipping:     o.Shipping,
		Notes:        o.Notes,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		ProcessingAt: timePtr(o.ProcessingAt),
		ShippedAt:    timePtr(o.ShippedAt),
		DeliveredAt:  timePtr(o.DeliveredAt),
		CancelledAt:  timePtr(o.CancelledAt),
	}
	if o.Tracking.Number != "" {
		t := o.Tracking
		dto.Tracking = &t
	}
	return dto
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}

	o, err := h.checkout.CreateFromCart(r.Context(), actor.UserID, appcheckout.CreateOrderInput{
		Shipping:     req.Shipping,
		Method:       req.Method,
		Tax:          req.Tax,
		ShippingCost: req.ShippingCost,
		Discount:     req.Discount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (h *orderHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *orderHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := domorder.Status(r.URL.Query().Get("status"))
	if status != "" && !domorder.ValidStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter", nil)
		return
	}

	orders, err := h.orders.List(r.Context(), actor, status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]orderDTO, len(orders))
	for i, o := range orders {
		out[i] = toOrderDTO(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *orderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), actor, chi.URLParam(r, "orderID"), req.Status, req.Tracking)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *orderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Cancel(r.Context(), actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *orderHandler) addNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Note == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "note is required", nil)
		return
	}

	o, err := h.orders.AddNote(r.Context(), actor, chi.URLParam(r, "orderID"), req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *orderHandler) track(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	var t domorder.Tracking
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body", nil)
		return
	}
	if t.Number == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tracking number is required", nil)
		return
	}

	o, err := h.orders.Track(r.Context(), actor, chi.URLParam(r, "orderID"), t)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}
