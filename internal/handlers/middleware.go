package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/game"
)

const sessionKey = "session"

// CORS allows the configured origin to call the API.
func CORS(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger writes one log line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		if status >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// OptionalSession attaches the caller's session when a valid bearer token
// is present. Invalid tokens are ignored.
func OptionalSession(tokens *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s, err := tokens.Parse(bearerToken(c)); err == nil {
			c.Set(sessionKey, s)
		}
		c.Next()
	}
}

// RequireSession rejects requests without a valid bearer token.
func RequireSession(tokens *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := tokens.Parse(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "a valid session token is required"})
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

// RequireLobbyMember checks the session was issued for the lobby in the path.
func RequireLobbyMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFrom(c)
		if !ok || s.LobbyID != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "session is for another lobby"})
			return
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return auth.Session{}, false
	}
	s, ok := v.(auth.Session)
	return s, ok
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// writeError maps engine errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var gerr *game.GameError
	if !errors.As(err, &gerr) {
		log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(statusFor(gerr), gin.H{"error": gerr.Error()})
}

func statusFor(err *game.GameError) int {
	switch err.Kind {
	case game.KindForbidden:
		return http.StatusForbidden
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
