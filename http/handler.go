package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/passgate/passgate/gate"
	"github.com/passgate/passgate/logger"
)

// HandlerProperties contains configuration for the HTTP handler.
type HandlerProperties struct {
	Core   *gate.Core
	Logger logger.Logger

	// FailureURL receives redirect-preferred rejections, with the
	// outcome code appended as the reason query parameter.
	FailureURL string

	// ProxyMode serves the resolved destination's body instead of
	// redirecting to it. Transport behavior only; verification is
	// identical either way.
	ProxyMode bool
}

// Handler creates and returns the main HTTP handler for the gate.
func Handler(props *HandlerProperties) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/verify", handleVerifyRedirect(props))
	r.Post("/v1/verify", handleVerifyJSON(props))
	r.Post("/v1/revoke", handleRevoke(props))

	return wrapGenericHandler(r, props)
}

// wrapGenericHandler applies the cross-cutting concerns: path validation,
// cache-prevention headers, and CORS (including the preflight
// short-circuit, which must answer before any engine work happens).
func wrapGenericHandler(handler http.Handler, props *HandlerProperties) http.Handler {
	origins := props.Core.Resolver().AllowedOrigins()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			respondError(w, http.StatusNotFound, "path must begin with /v1/")
			return
		}

		setCacheHeaders(w)
		setCORSHeaders(w, r, origins)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		handler.ServeHTTP(w, r)
	})
}
