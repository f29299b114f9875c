// Package httptransport assembles the HTTP surface: middleware that stamps
// request-scoped context, the health and metrics endpoints, and the feature
// handlers mounted by their Register methods.
package httptransport

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mirrorgate/internal/platform/config"
	"mirrorgate/pkg/platform/httputil"
	"mirrorgate/pkg/requestcontext"
)

// Registrar is any feature handler that can mount its routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the full router. Every request passes through the context
// middleware so handlers and services can rely on requestcontext accessors.
func NewRouter(cfg config.ServerConfig, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestContext(cfg.OperatorToken))

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestContext stamps the request-scoped values every layer below reads:
// correlation ID, request time, client IP, raw user agent, and the operator
// flag when the configured token is presented.
func requestContext(operatorToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx = requestcontext.WithRequestID(ctx, requestID)
			ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
			ctx = requestcontext.WithClientIP(ctx, clientIP(r))
			ctx = requestcontext.WithUserAgent(ctx, r.UserAgent())
			if operatorToken != "" && r.Header.Get("X-Operator-Token") == operatorToken {
				ctx = requestcontext.WithOperator(ctx, true)
			}

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
