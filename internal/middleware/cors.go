package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig lists the front-end origins allowed to call the portal API.
// A "*" entry only takes effect when AllowCredentials is off: the session
// cookie must never be readable from an arbitrary origin.
type CORSConfig struct {
	AllowOrigins     []string
	AllowCredentials bool
	MaxAge           int
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsAllowHeaders  = "Content-Type, Authorization, " + HeaderXRequestID
	corsExposeHeaders = "Content-Disposition, " + HeaderXRequestID
)

// DefaultCORSConfig allows no cross origin; serve fills AllowOrigins from
// server.allowedOrigins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowCredentials: true, MaxAge: 86400}
}

func (cfg CORSConfig) allowed(origin string) string {
	for _, o := range cfg.AllowOrigins {
		switch {
		case o == origin:
			return origin
		case o == "*" && !cfg.AllowCredentials:
			return "*"
		}
	}
	return ""
}

// CORS answers preflights and echoes allowed origins.
func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		origin := c.GetHeader("Origin")
		allowed := ""
		if origin != "" {
			allowed = config.allowed(origin)
		}
		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Expose-Headers", corsExposeHeaders)
			c.Header("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
			if config.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
