package handler

import (
	"errors"
	"net/http"

	"acro-shop/service"
)

// Register handles POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Register(r.Context(), req, sessionID(r))
	if errors.Is(err, service.ErrConflict) {
		writeErr(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Login handles POST /api/auth/login. The guest cart of X-Session-ID is
// merged into the user's cart.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req, sessionID(r))
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		writeErr(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrForbidden):
		writeErr(w, http.StatusForbidden, "account is disabled")
	case err != nil:
		h.writeServiceErr(w, r, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), callerFrom(r.Context()).User.ID)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}
