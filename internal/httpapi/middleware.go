package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/metrics"
)

const userIDKey = "auth.userID"

// metricsMiddleware instruments every request with the shared registry.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(started))
	}
}

// authMiddleware verifies the externally issued bearer token and stashes
// the subject as the acting user id. In dev mode a userId query or body
// field is trusted instead.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.devMode {
			if uid := strings.TrimSpace(c.Query("userId")); uid != "" {
				c.Set(userIDKey, uid)
			}
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(c, apperr.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		}, jwt.WithIssuer(h.jwtIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid || claims.Subject == "" {
			writeError(c, apperr.Unauthorized("invalid session token"))
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// userID returns the authenticated user, falling back to the explicit
// parameter only in dev mode.
func (h *Handler) userID(c *gin.Context, explicit string) (string, error) {
	if v, ok := c.Get(userIDKey); ok {
		if uid, ok := v.(string); ok && uid != "" {
			return uid, nil
		}
	}
	if h.devMode && explicit != "" {
		return explicit, nil
	}
	return "", apperr.Unauthorized("no authenticated user")
}

func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeBadRequest:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeExternalService:
		status = http.StatusBadGateway
	}

	message := "internal error"
	if code != "" {
		message = err.Error()
	} else {
		code = "internal"
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
