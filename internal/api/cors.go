package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigins []string // "*" or exact origins
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin. The API normally listens on
// loopback only, and the frontend dev server runs on its own port.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func (c CORSConfig) allowOrigin(origin string) string {
	if slices.Contains(c.AllowOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(c.AllowOrigins, origin) {
		return origin
	}
	return ""
}

// corsHeaders pre-computes the static header values.
func (c CORSConfig) corsHeaders() (methods, headers, maxAge string) {
	return strings.Join(c.AllowMethods, ", "), strings.Join(c.AllowHeaders, ", "), strconv.Itoa(c.MaxAge)
}

// NewCORSMiddleware creates CORS middleware with the given configuration
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	allowMethods, allowHeaders, maxAge := config.corsHeaders()

	return func(ctx huma.Context, next func(huma.Context)) {
		if origin := config.allowOrigin(ctx.Header("Origin")); origin != "" {
			ctx.SetHeader("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				ctx.SetHeader("Vary", "Origin")
			}
			ctx.SetHeader("Access-Control-Allow-Methods", allowMethods)
			ctx.SetHeader("Access-Control-Allow-Headers", allowHeaders)
			ctx.SetHeader("Access-Control-Max-Age", maxAge)
		}

		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}

		next(ctx)
	}
}

// AddCORSHandler adds a CORS preflight handler to the mux for OPTIONS requests
// This is needed because Huma middleware doesn't intercept OPTIONS before routing
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	allowMethods, allowHeaders, maxAge := config.corsHeaders()

	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		if origin := config.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			w.Header().Set("Access-Control-Max-Age", maxAge)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
