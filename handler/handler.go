package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"acro-shop/ratelimit"
	"acro-shop/service"
	"acro-shop/store"
)

// Limit is a rate limiter together with the message sent when it trips.
type Limit struct {
	*ratelimit.Limiter
	Message string
}

type Options struct {
	// Dev exposes internal error messages to clients.
	Dev            bool
	AllowedOrigins []string
	// TrustProxyHops is the number of reverse proxies in front of the API.
	// When positive, the client address is the X-Forwarded-For entry the
	// outermost trusted proxy appended; zero ignores the header.
	TrustProxyHops int

	GlobalLimit  *Limit
	AuthLimit    *Limit
	ContactLimit *Limit
}

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc      service.ServiceInterface
	log      *zap.Logger
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, log *zap.Logger, opts Options) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Handler{svc: s, log: log, validate: v, opts: opts, now: time.Now}
}

// Router returns the complete HTTP handler: routes plus CORS, panic recovery
// and request logging.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(h.logRequests)
	h.RegisterRoutes(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "route not found")
	})

	var out http.Handler = r
	out = handlers.CORS(
		handlers.AllowedOrigins(h.opts.AllowedOrigins),
		handlers.AllowCredentials(),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Session-ID"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
	)(out)
	out = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(h.log)),
		handlers.PrintRecoveryStack(true),
	)(out)
	return out
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.rateLimit(h.opts.GlobalLimit))

	// No bearer authentication: these must answer with a stale token or a
	// database that is down.
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/auth/register", h.limit(h.opts.AuthLimit, h.Register)).Methods("POST")
	api.HandleFunc("/auth/login", h.limit(h.opts.AuthLimit, h.Login)).Methods("POST")

	api = api.NewRoute().Subrouter()
	api.Use(h.identify)

	api.HandleFunc("/auth/me", h.requireUser(h.Me)).Methods("GET")

	// Catalog
	api.HandleFunc("/products", h.ListProducts).Methods("GET")
	api.HandleFunc("/products/{slug}", h.GetProduct).Methods("GET")

	// Cart
	api.HandleFunc("/cart", h.withOwner(h.GetCart)).Methods("GET")
	api.HandleFunc("/cart", h.withOwner(h.ClearCart)).Methods("DELETE")
	api.HandleFunc("/cart/sync", h.withOwner(h.SyncCart)).Methods("PUT")
	api.HandleFunc("/cart/items", h.withOwner(h.AddToCart)).Methods("POST")
	api.HandleFunc("/cart/items/{productId}", h.withOwner(h.RemoveFromCart)).Methods("DELETE")

	// Wishlist
	api.HandleFunc("/wishlist", h.withOwner(h.ListWishlist)).Methods("GET")
	api.HandleFunc("/wishlist", h.withOwner(h.AddToWishlist)).Methods("POST")
	api.HandleFunc("/wishlist/{productId}", h.withOwner(h.RemoveFromWishlist)).Methods("DELETE")

	// Orders
	api.HandleFunc("/orders/config/shipping", h.ShippingConfig).Methods("GET")
	api.HandleFunc("/orders", h.withOwner(h.CreateOrder)).Methods("POST")
	api.HandleFunc("/orders", h.requireUser(h.ListMyOrders)).Methods("GET")
	api.HandleFunc("/orders/{id}", h.withOwner(h.GetOrder)).Methods("GET")

	// Payments
	api.HandleFunc("/payu/create/{orderId}", h.withOwner(h.CreatePayment)).Methods("POST")
	api.HandleFunc("/payu/status/{orderId}", h.withOwner(h.PaymentStatus)).Methods("GET")
	api.HandleFunc("/payu/notify", h.PayUNotify).Methods("POST")

	api.HandleFunc("/contact", h.limit(h.opts.ContactLimit, h.Contact)).Methods("POST")

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/products", h.CreateProduct).Methods("POST")
	admin.HandleFunc("/products/{id}", h.UpdateProduct).Methods("PUT")
	admin.HandleFunc("/products/{id}", h.DeleteProduct).Methods("DELETE")
	admin.HandleFunc("/products/{id}/stock", h.UpdateStock).Methods("PATCH")
	admin.HandleFunc("/orders", h.AdminListOrders).Methods("GET")
	admin.HandleFunc("/orders/{id}/status", h.AdminUpdateOrderStatus).Methods("PATCH")
	admin.HandleFunc("/orders/{id}/invoice", h.AdminCreateInvoice).Methods("POST")
	admin.HandleFunc("/images", h.AdminListImages).Methods("GET")
}

// Health handles GET /api/health. It does not touch the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const maxBody = 1 << 20

// decode reads a JSON body into v and validates it. It writes the 400
// response itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return false
		}
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "validation failed",
			"details": details,
		})
		return false
	}
	return true
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required together with " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}

// writeServiceErr maps service and store errors onto HTTP statuses.
func (h *Handler) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var gw *service.GatewayError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrEmptyCart):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeErr(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrForbidden):
		writeErr(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrProductUnavailable):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrAlreadyInvoiced),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrPaymentStarted),
		errors.Is(err, store.ErrStaleState):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotConfigured):
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &gw):
		h.log.Error("gateway error",
			zap.String("gateway", gw.Gateway),
			zap.String("path", r.URL.Path),
			zap.Error(gw.Err))
		writeErr(w, http.StatusBadGateway, gw.Gateway+" request failed")
	default:
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		msg := "internal server error"
		if h.opts.Dev {
			msg = err.Error()
		}
		writeErr(w, http.StatusInternalServerError, msg)
	}
}
