package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// envelopeRouter runs each handler behind a fixed request id and a logger
// writing to buf.
func envelopeRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(buf)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("requestID", "rid-env")
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func TestFail_Envelope(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   string
		logged bool
	}{
		{"not found", http.StatusNotFound, ErrCodeNotFound, false},
		{"conflict", http.StatusConflict, ErrCodeInvalidTransition, false},
		{"internal", http.StatusInternalServerError, ErrCodeInternal, true},
		{"unavailable", http.StatusServiceUnavailable, ErrCodeUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := envelopeRouter(&buf)
			r.GET("/x", func(c *gin.Context) { Fail(c, tc.status, tc.code, "msg "+tc.code) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			var er ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("json: %v", err)
			}
			if er.RequestID != "rid-env" || er.Code != tc.code || er.Message != "msg "+tc.code {
				t.Fatalf("body=%+v", er)
			}
			if got := strings.Contains(buf.String(), `"level":"error"`); got != tc.logged {
				t.Fatalf("logged=%v want %v (%s)", got, tc.logged, buf.String())
			}
		})
	}
}

func TestOK_And_NoContent(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter(&buf)
	r.POST("/students", func(c *gin.Context) {
		ok(c, http.StatusCreated, &domain.Student{ID: "s1", Name: "Ana", Level: 2})
	})
	r.DELETE("/students/s1", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/students", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var st domain.Student
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.ID != "s1" || st.Level != 2 {
		t.Fatalf("student=%+v", st)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/students/s1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete -> %d %q", w.Code, w.Body.String())
	}
	if buf.Len() != 0 {
		t.Fatalf("success paths should not log: %s", buf.String())
	}
}
