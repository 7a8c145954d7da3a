package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"acro-shop/model"
)

// AdminListOrders handles GET /api/admin/orders?status=&page=&limit=
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	page, err := h.svc.ListOrders(r.Context(), status, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type orderStatusReq struct {
	Status model.OrderStatus `json:"status" validate:"required,oneof=PENDING PAID PROCESSING SHIPPED DELIVERED CANCELLED"`
}

// AdminUpdateOrderStatus handles PATCH /api/admin/orders/{id}/status
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusReq
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.svc.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// AdminCreateInvoice handles POST /api/admin/orders/{id}/invoice
func (h *Handler) AdminCreateInvoice(w http.ResponseWriter, r *http.Request) {
	issued, err := h.svc.CreateInvoice(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"invoiceId": issued.ID, "invoiceNumber": issued.Number})
}

// AdminListImages handles GET /api/admin/images?prefix=&cursor=&limit=
func (h *Handler) AdminListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.ListImages(r.Context(), q.Get("prefix"), q.Get("cursor"), queryInt(r, "limit"))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
