package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/core"
)

// ContextKeyIdentity is the gin context key holding the verified identity.
const ContextKeyIdentity = "identity"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ExtractCredential reads the bearer credential from the request. Two
// equally accepted locations: the token query field (the protocol-level
// auth field for ws/poll handshakes) and the Authorization header.
func ExtractCredential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// rejectStatus maps a verification failure to its HTTP status.
func rejectStatus(err error) int {
	if errors.Is(err, core.ErrIdentityRejected) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// AuthMiddleware verifies the bearer credential and attaches the
// resolved identity to the request context.
func AuthMiddleware(verifier *auth.Verifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := ExtractCredential(c.Request)
		identity, err := verifier.Verify(c.Request.Context(), credential)
		if err != nil {
			logger.Debug().Err(err).Msg("request rejected")
			c.JSON(rejectStatus(err), ErrorResponse{Error: "authentication required"})
			c.Abort()
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// ServiceAuthMiddleware guards the ingress API. Trusted backend
// services present X-Service-Key (checked against the configured bcrypt
// hash); everyone else needs an admin bearer token.
func ServiceAuthMiddleware(verifier *auth.Verifier, serviceKeyHash string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Service-Key"); key != "" && serviceKeyHash != "" {
			if err := auth.CompareServiceKey(serviceKeyHash, key); err == nil {
				c.Next()
				return
			}
			logger.Warn().Str("remote", c.ClientIP()).Msg("invalid service key")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid service key"})
			c.Abort()
			return
		}

		credential := ExtractCredential(c.Request)
		identity, err := verifier.Verify(c.Request.Context(), credential)
		if err != nil {
			logger.Debug().Err(err).Msg("ingress request rejected")
			c.JSON(rejectStatus(err), ErrorResponse{Error: "authentication required"})
			c.Abort()
			return
		}
		if !identity.IsAdmin() {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin role required"})
			c.Abort()
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// CORSMiddleware allows the configured browser origin with credentials.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && origin == allowedOrigin {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Service-Key")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after completion.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
