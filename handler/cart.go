package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"acro-shop/model"
)

// GetCart handles GET /api/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), callerFrom(r.Context()).Owner())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

type syncCartReq struct {
	Items []model.CartItem `json:"items" validate:"dive"`
}

// SyncCart handles PUT /api/cart/sync
// body: { "items": [{ "productId": "...", "quantity": 1, "size": "M" }] }
func (h *Handler) SyncCart(w http.ResponseWriter, r *http.Request) {
	var req syncCartReq
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.svc.SyncCart(r.Context(), callerFrom(r.Context()).Owner(), req.Items)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddToCart handles POST /api/cart/items
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req model.CartItem
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.svc.AddToCart(r.Context(), callerFrom(r.Context()).Owner(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveFromCart handles DELETE /api/cart/items/{productId}
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.RemoveFromCart(r.Context(), callerFrom(r.Context()).Owner(), mux.Vars(r)["productId"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ClearCart handles DELETE /api/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), callerFrom(r.Context()).Owner()); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) ListWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListWishlist(r.Context(), callerFrom(r.Context()).Owner())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type wishlistReq struct {
	ProductID string `json:"productId" validate:"required,uuid"`
}

func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	var req wishlistReq
	if !h.decode(w, r, &req) {
		return
	}
	items, err := h.svc.AddToWishlist(r.Context(), callerFrom(r.Context()).Owner(), req.ProductID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.RemoveFromWishlist(r.Context(), callerFrom(r.Context()).Owner(), mux.Vars(r)["productId"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
