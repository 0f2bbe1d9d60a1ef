package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/identity"
)

// ContextKeyIdentity is the gin context key holding the caller's snapshot.
const ContextKeyIdentity = "identity"

// ErrorResponse is the JSON error body for API responses.
type ErrorResponse struct {
	Error      string  `json:"error"`
	Code       string  `json:"code,omitempty"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

// IdentityMiddleware validates the host-signed identity token and stashes
// the snapshot in the request context. The core never authenticates; it
// only verifies that the snapshot was issued by the host.
func IdentityMiddleware(codec *identity.Codec, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := identityFromRequest(c.Request, codec)
		if err != "" {
			logger.Debug().Str("reason", err).Msg("identity rejected")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err})
			c.Abort()
			return
		}
		c.Set(ContextKeyIdentity, who)
		c.Next()
	}
}

// identityFromRequest extracts and verifies the identity token. Shared by
// the gin middleware and the plain net/http websocket handler.
func identityFromRequest(r *http.Request, codec *identity.Codec) (core.Identity, string) {
	authHeader := r.Header.Get("Authorization")
	token := ""
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return core.Identity{}, "invalid authorization header format"
		}
		token = parts[1]
	} else {
		// WebSocket clients from browsers cannot set headers; allow the
		// token as a query parameter there.
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return core.Identity{}, "missing identity token"
	}
	who, err := codec.Decode(token)
	if err != nil {
		return core.Identity{}, "invalid identity token"
	}
	return who, ""
}

// mustIdentity pulls the snapshot placed by IdentityMiddleware.
func mustIdentity(c *gin.Context) (core.Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return core.Identity{}, false
	}
	who, ok := v.(core.Identity)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return core.Identity{}, false
	}
	return who, true
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
