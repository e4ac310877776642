package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// Authenticator resolves a bearer token to an active user.
// services.AuthService satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*domain.User, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token
// with 401 unauthorized. On success the user id is stored under "userID" and
// attached to the request-scoped logger.
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			abortError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		u, err := authn.Authenticate(c.Request.Context(), raw)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			abortError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set("userID", u.ID)
		c.Set("user", u)

		l := LoggerFrom(c).With().Str("user_id", u.ID).Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()
	}
}

// UserIDFrom returns the authenticated user id, or "" outside RequireAuth.
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get("userID")
	return asString(v)
}

func bearerToken(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
