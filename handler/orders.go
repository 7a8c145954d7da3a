package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"acro-shop/mailer"
	"acro-shop/service"
)

// ShippingConfig handles GET /api/orders/config/shipping
func (h *Handler) ShippingConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ShippingOptions())
}

// CreateOrder handles POST /api/orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderInput
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListMyOrders handles GET /api/orders?page=&limit=
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	page, err := h.svc.ListMyOrders(r.Context(), c.User.ID, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetOrder handles GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), callerFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CreatePayment handles POST /api/payu/create/{orderId}
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.CreatePayment(r.Context(), callerFrom(r.Context()), mux.Vars(r)["orderId"], h.clientIP(r))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PaymentStatus handles GET /api/payu/status/{orderId}
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CheckPaymentStatus(r.Context(), callerFrom(r.Context()), mux.Vars(r)["orderId"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PayUNotify handles POST /api/payu/notify, called by PayU.
func (h *Handler) PayUNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable body")
		return
	}
	sig := r.Header.Get("OpenPayu-Signature")
	if sig == "" {
		sig = r.Header.Get("X-OpenPayu-Signature")
	}
	if err := h.svc.HandleNotification(r.Context(), sig, body); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Contact handles POST /api/contact
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req mailer.Contact
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SendContact(r.Context(), req); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
