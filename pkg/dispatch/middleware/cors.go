package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"meridian-hq/vesta/pkg/dispatch"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	Enabled bool

	// AllowedOrigins is a list of allowed origins. Use ["*"] to allow all.
	AllowedOrigins []string

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders is a list of allowed HTTP headers.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers exposed to clients.
	ExposedHeaders []string

	// MaxAge is the maximum age (in seconds) for the preflight cache.
	MaxAge int

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool
}

// DefaultCORSConfig returns a permissive default CORS configuration.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         3600,
	}
}

// CORS emits Cross-Origin Resource Sharing headers and answers preflight
// OPTIONS requests without invoking the rest of the chain (the preflight
// response ends the request, exercising the short-circuit path).
func CORS(config *CORSConfig) dispatch.Middleware {
	if config == nil {
		config = DefaultCORSConfig()
	}
	return func(c *dispatch.Context, next dispatch.Next) error {
		if !config.Enabled {
			return next()
		}

		header := c.Response.Header()
		origin := c.Request.Header.Get("Origin")
		if origin != "" && originAllowed(origin, config.AllowedOrigins) {
			header.Set("Access-Control-Allow-Origin", origin)
			if config.AllowCredentials {
				header.Set("Access-Control-Allow-Credentials", "true")
			}
			if len(config.ExposedHeaders) > 0 {
				header.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
			}
		} else if originAllowed("*", config.AllowedOrigins) {
			header.Set("Access-Control-Allow-Origin", "*")
		}

		if c.Request.Method == http.MethodOptions {
			if len(config.AllowedMethods) > 0 {
				header.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
			}
			if len(config.AllowedHeaders) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
			}
			if config.MaxAge > 0 {
				header.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			}
			// Preflight: stage 204 and halt the chain.
			c.Response.Stage(http.StatusNoContent, nil)
			c.Response.End()
			return nil
		}

		return next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
