// Package middleware provides HTTP middleware for the print service API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/auth"
)

// AdminAuth returns a middleware that requires the configured admin bearer
// token. Requests without a valid token are rejected with 401; a validator
// configured without a token rejects everything.
func AdminAuth(validator *auth.AdminTokenValidator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "admin_auth").Logger()

	return func(c *gin.Context) {
		token := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if !validator.Validate(token) {
			log.Debug().
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("unauthenticated admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Next()
	}
}
