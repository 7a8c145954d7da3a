package handler

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"acro-shop/service"
)

type ctxKey int

const callerKey ctxKey = iota

func callerFrom(ctx context.Context) service.Caller {
	c, _ := ctx.Value(callerKey).(service.Caller)
	return c
}

// identify resolves the bearer token, if any, and the guest session header.
// A present but invalid token is rejected; a missing one makes a guest.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := service.Caller{SessionID: sessionID(r)}

		if authz := r.Header.Get("Authorization"); authz != "" {
			token, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || token == "" {
				writeErr(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			u, err := h.svc.Authenticate(r.Context(), token)
			if err != nil {
				h.writeServiceErr(w, r, err)
				return
			}
			c.User = &u
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, c)))
	})
}

func (h *Handler) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).User == nil {
			writeErr(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := callerFrom(r.Context())
		if c.User == nil {
			writeErr(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !c.IsAdmin() {
			writeErr(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withOwner requires a user or a guest session id.
func (h *Handler) withOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r.Context()).Owner().Empty() {
			writeErr(w, http.StatusBadRequest, "X-Session-ID header required")
			return
		}
		next(w, r)
	}
}

func sessionID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

// clientIP is the address rate limits and logs are keyed on. Behind
// TrustProxyHops proxies it is read from the right end of X-Forwarded-For,
// the part a client cannot forge.
func (h *Handler) clientIP(r *http.Request) string {
	if n := h.opts.TrustProxyHops; n > 0 {
		var hops []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					hops = append(hops, p)
				}
			}
		}
		if len(hops) >= n {
			if ip := net.ParseIP(hops[len(hops)-n]); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) allow(l *Limit, w http.ResponseWriter, r *http.Request) bool {
	ip := h.clientIP(r)
	ok, remaining, reset := l.Allow(ip)
	w.Header().Set("RateLimit-Limit", strconv.Itoa(l.Limit()))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("RateLimit-Reset", strconv.Itoa(int(time.Until(reset).Seconds())))
	if !ok {
		h.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
		writeErr(w, http.StatusTooManyRequests, l.Message)
	}
	return ok
}

// rateLimit applies l to every request of a router. A nil l disables it.
func (h *Handler) rateLimit(l *Limit) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.allow(l, w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// limit applies l to a single route.
func (h *Handler) limit(l *Limit, next http.HandlerFunc) http.HandlerFunc {
	if l == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if h.allow(l, w, r) {
			next(w, r)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", h.clientIP(r)))
	})
}
