package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig allows any origin to send events. Credentials are off
// because no endpoint reads cookies.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			"X-Trace-ID",
			"X-Span-ID",
		},
		ExposeHeaders: []string{"X-Trace-ID", "X-Span-ID"},
		MaxAge:        12 * time.Hour,
	}
}

// WithOrigins returns a copy of c restricted to origins; an empty list
// keeps the current origins
func (c CORSConfig) WithOrigins(origins ...string) CORSConfig {
	if len(origins) > 0 {
		c.AllowOrigins = append([]string(nil), origins...)
	}
	return c
}

// CORS creates a CORS middleware. A "*" origin cannot be combined with
// credentials.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			return cors.New(cors.Config{
				AllowAllOrigins: true,
				AllowMethods:    cfg.AllowMethods,
				AllowHeaders:    cfg.AllowHeaders,
				ExposeHeaders:   cfg.ExposeHeaders,
				MaxAge:          cfg.MaxAge,
			})
		}
	}

	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
