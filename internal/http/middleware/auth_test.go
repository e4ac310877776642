package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

type fakeAuthn struct {
	authFn func(ctx context.Context, raw string) (*domain.User, error)
}

func (f fakeAuthn) Authenticate(ctx context.Context, raw string) (*domain.User, error) {
	return f.authFn(ctx, raw)
}

func newAuthRouter(authn Authenticator, seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(RequireAuth(authn))
	r.GET("/me", func(c *gin.Context) {
		*seen = UserIDFrom(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	authn := fakeAuthn{authFn: func(_ context.Context, raw string) (*domain.User, error) {
		if raw == "good" {
			return &domain.User{ID: "u-1"}, nil
		}
		return nil, errors.New("bad token")
	}}

	cases := []struct {
		name   string
		header string
		status int
		userID string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", http.StatusUnauthorized, ""},
		{"invalid", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer good", http.StatusNoContent, "u-1"},
		{"scheme case", "bearer good", http.StatusNoContent, "u-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			r := newAuthRouter(authn, &seen)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if seen != tc.userID {
				t.Fatalf("user id = %q, want %q", seen, tc.userID)
			}
			if tc.status == http.StatusUnauthorized {
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Fatalf("missing WWW-Authenticate")
				}
				if errorCode(t, w) != "unauthorized" {
					t.Fatalf("body = %s", w.Body.String())
				}
			}
		})
	}
}

func TestRequireAuth_BindsUserToLogger(t *testing.T) {
	buf := captureLogger(t)
	authn := fakeAuthn{authFn: func(context.Context, string) (*domain.User, error) {
		return &domain.User{ID: "u-9"}, nil
	}}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(RedactOptions{}), RequireAuth(authn))
	r.GET("/me", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer any")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !logLineHas(buf.String(), `"message":"inside"`, `"user_id":"u-9"`) {
		t.Fatalf("handler log lacks user_id:\n%s", buf.String())
	}
}

// logLineHas reports whether one log line holds every fragment.
func logLineHas(out string, frags ...string) bool {
	for _, line := range strings.Split(out, "\n") {
		all := true
		for _, f := range frags {
			if !strings.Contains(line, f) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
