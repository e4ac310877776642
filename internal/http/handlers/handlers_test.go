package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
	"github.com/tbourn/go-tutor-backend/internal/services"
)

// ---------- fakes ----------

type fakeStudents struct {
	createFn func(ctx context.Context, tutorID, name string, level int) (*domain.Student, error)
	listFn   func(ctx context.Context, tutorID string, page, pageSize int) ([]domain.Student, int64, error)
	statsFn  func(ctx context.Context, tutorID string) (int64, *time.Time, error)
	deleteFn func(ctx context.Context, tutorID, id string) error
}

func (f *fakeStudents) Create(ctx context.Context, tutorID, name string, level int) (*domain.Student, error) {
	return f.createFn(ctx, tutorID, name, level)
}
func (f *fakeStudents) Get(context.Context, string, string) (*domain.Student, error) {
	return nil, services.ErrStudentNotFound
}
func (f *fakeStudents) ListPage(ctx context.Context, tutorID string, page, pageSize int) ([]domain.Student, int64, error) {
	return f.listFn(ctx, tutorID, page, pageSize)
}
func (f *fakeStudents) Stats(ctx context.Context, tutorID string) (int64, *time.Time, error) {
	return f.statsFn(ctx, tutorID)
}
func (f *fakeStudents) Update(context.Context, string, string, services.StudentPatch) (*domain.Student, error) {
	return nil, services.ErrStudentNotFound
}
func (f *fakeStudents) Delete(ctx context.Context, tutorID, id string) error {
	return f.deleteFn(ctx, tutorID, id)
}

type fakeAssignments struct {
	AssignmentService
	submitFn func(ctx context.Context, tutorID, id string, in services.SubmitInput) (*services.SubmitResult, error)
	listFn   func(ctx context.Context, tutorID string, f services.AssignmentFilter, page, pageSize int) ([]domain.Assignment, int64, error)
}

func (f *fakeAssignments) Submit(ctx context.Context, tutorID, id string, in services.SubmitInput) (*services.SubmitResult, error) {
	return f.submitFn(ctx, tutorID, id, in)
}
func (f *fakeAssignments) List(ctx context.Context, tutorID string, fl services.AssignmentFilter, page, pageSize int) ([]domain.Assignment, int64, error) {
	return f.listFn(ctx, tutorID, fl, page, pageSize)
}

type fakeAuth struct {
	AuthService
	loginFn func(ctx context.Context, email, password string) (*services.Token, error)
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*services.Token, error) {
	return f.loginFn(ctx, email, password)
}

type fakeBilling struct {
	BillingService
	exportFn func(ctx context.Context, tutorID string, f services.BillingFilter) ([]byte, error)
}

func (f *fakeBilling) ExportInvoices(ctx context.Context, tutorID string, fl services.BillingFilter) ([]byte, error) {
	return f.exportFn(ctx, tutorID, fl)
}

type fakeProfiles struct {
	ProfileService
	updateFn func(ctx context.Context, tutorID, studentID string, p services.BioPatch) (*domain.StudentBio, error)
	avatarFn func(ctx context.Context, tutorID, studentID, theme string) (*domain.Student, error)
}

func (f *fakeProfiles) UpdateBio(ctx context.Context, tutorID, studentID string, p services.BioPatch) (*domain.StudentBio, error) {
	return f.updateFn(ctx, tutorID, studentID, p)
}
func (f *fakeProfiles) SetAvatar(ctx context.Context, tutorID, studentID, theme string) (*domain.Student, error) {
	return f.avatarFn(ctx, tutorID, studentID, theme)
}

type fakeAnalytics struct {
	AnalyticsService
	tempoFn func(ctx context.Context, tutorID, studentID string, days int) (*services.Tempo, error)
	radarFn func(ctx context.Context, tutorID string) ([]services.PriorityItem, error)
}

func (f *fakeAnalytics) Tempo(ctx context.Context, tutorID, studentID string, days int) (*services.Tempo, error) {
	return f.tempoFn(ctx, tutorID, studentID, days)
}
func (f *fakeAnalytics) PriorityRadar(ctx context.Context, tutorID string) ([]services.PriorityItem, error) {
	return f.radarFn(ctx, tutorID)
}

// newTestRouter authenticates every request as tutor "t1" and mounts the
// routes the tests exercise.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "t1")
		c.Next()
	})
	r.POST("/auth/token", h.Token)
	r.POST("/auth/login", h.Login)
	r.GET("/students", h.ListStudents)
	r.POST("/students", h.CreateStudent)
	r.DELETE("/students/:id", h.DeleteStudent)
	r.GET("/students/:id/assignments", h.ListStudentAssignments)
	r.POST("/assignments/:id/submit", h.SubmitAssignment)
	r.GET("/invoices/export", h.ExportInvoices)
	r.PUT("/students/:id/bio", h.UpdateBio)
	r.POST("/students/:id/avatar", h.SetAvatar)
	r.GET("/analytics/tempo", h.Tempo)
	r.GET("/analytics/exam-forecast", h.ExamForecast)
	r.GET("/analytics/priority-radar", h.PriorityRadar)
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
	return r
}

func do(r http.Handler, method, path string, body []byte, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return er
}

// ---------- tests ----------

func TestServiceError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: name is required", services.ErrInvalidInput), http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrInactiveUser, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrStudentNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("load: %w", services.ErrInvoiceNotFound), http.StatusNotFound, ErrCodeNotFound},
		{services.ErrNotParticipant, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrAvatarThemeNotFound, http.StatusNotFound, ErrCodeNotFound},
		{repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition},
		{services.ErrInvoiceSettled, http.StatusConflict, ErrCodeInvalidTransition},
		{services.ErrEmailTaken, http.StatusConflict, ErrCodeConflict},
		{services.ErrAlreadyJoined, http.StatusConflict, ErrCodeConflict},
		{repo.ErrDuplicate, http.StatusConflict, ErrCodeConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		serviceError(c, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		er := decodeError(t, w)
		if er.Code != tc.code {
			t.Fatalf("%v: code=%q want %q", tc.err, er.Code, tc.code)
		}
		if tc.status == http.StatusInternalServerError && strings.Contains(er.Message, "fire") {
			t.Fatalf("500 leaked internal error: %q", er.Message)
		}
	}
}

func TestClampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query          string
		page, pageSize int
	}{
		{"", 1, services.DefaultPageSize},
		{"page=3&page_size=5", 3, 5},
		{"page=-2&page_size=0", 1, 1},
		{"page=x&page_size=1000", 1, services.MaxPageSize},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		p, ps := clampPagination(c)
		if p != tc.page || ps != tc.pageSize {
			t.Fatalf("%q -> (%d,%d) want (%d,%d)", tc.query, p, ps, tc.page, tc.pageSize)
		}
	}
}

func TestCreateStudent(t *testing.T) {
	var gotTutor, gotName string
	st := &fakeStudents{createFn: func(_ context.Context, tutorID, name string, level int) (*domain.Student, error) {
		gotTutor, gotName = tutorID, name
		return &domain.Student{ID: "s1", TutorID: tutorID, Name: name, Level: 1}, nil
	}}
	r := newTestRouter(New(Services{Students: st}))

	w := do(r, http.MethodPost, "/students", []byte(`{"name":"Ana"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotTutor != "t1" || gotName != "Ana" {
		t.Fatalf("service got (%q,%q)", gotTutor, gotName)
	}
	var out domain.Student
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.ID != "s1" {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = do(r, http.MethodPost, "/students", []byte(`{"level":2}`))
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("missing name -> %d %s", w.Code, w.Body.String())
	}
}

func TestListStudents_PageAndETag(t *testing.T) {
	ts := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	listCalls := 0
	st := &fakeStudents{
		statsFn: func(context.Context, string) (int64, *time.Time, error) { return 3, &ts, nil },
		listFn: func(_ context.Context, _ string, page, pageSize int) ([]domain.Student, int64, error) {
			listCalls++
			return []domain.Student{{ID: "a"}, {ID: "b"}}, 3, nil
		},
	}
	r := newTestRouter(New(Services{Students: st}))

	w := do(r, http.MethodGet, "/students?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var page Page[domain.Student]
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(page.Items) != 2 || page.Pagination.TotalPages != 2 || !page.Pagination.HasNext {
		t.Fatalf("page = %+v", page)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"students:t1:3:`) {
		t.Fatalf("etag = %q", etag)
	}

	w = do(r, http.MethodGet, "/students?page=1&page_size=2", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional GET -> %d", w.Code)
	}
	if listCalls != 1 {
		t.Fatalf("304 should skip the list query; calls=%d", listCalls)
	}

	// A different page has a different validator.
	w = do(r, http.MethodGet, "/students?page=2&page_size=2", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("other page -> %d", w.Code)
	}
}

func TestListStudents_EmptyIsArray(t *testing.T) {
	st := &fakeStudents{
		statsFn: func(context.Context, string) (int64, *time.Time, error) { return 0, nil, errors.New("stats down") },
		listFn: func(context.Context, string, int, int) ([]domain.Student, int64, error) {
			return nil, 0, nil
		},
	}
	r := newTestRouter(New(Services{Students: st}))

	w := do(r, http.MethodGet, "/students", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("failed stats should not set an ETag")
	}
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestDeleteStudent(t *testing.T) {
	st := &fakeStudents{deleteFn: func(_ context.Context, _, id string) error {
		if id == "gone" {
			return services.ErrStudentNotFound
		}
		return nil
	}}
	r := newTestRouter(New(Services{Students: st}))

	if w := do(r, http.MethodDelete, "/students/s1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/students/gone", nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete missing -> %d", w.Code)
	}
}

func TestListStudentAssignments_ScopesByPath(t *testing.T) {
	var got services.AssignmentFilter
	as := &fakeAssignments{listFn: func(_ context.Context, _ string, f services.AssignmentFilter, _, _ int) ([]domain.Assignment, int64, error) {
		got = f
		if f.StudentID == "deleted" {
			return nil, 0, services.ErrStudentNotFound
		}
		return []domain.Assignment{{ID: "a1"}}, 1, nil
	}}
	r := newTestRouter(New(Services{Assignments: as}))

	if w := do(r, http.MethodGet, "/students/s1/assignments?status=late", nil); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got.StudentID != "s1" || got.Status != "late" {
		t.Fatalf("filter = %+v", got)
	}
	if w := do(r, http.MethodGet, "/students/deleted/assignments", nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted student -> %d", w.Code)
	}
}

func TestSubmitAssignment(t *testing.T) {
	var got services.SubmitInput
	as := &fakeAssignments{submitFn: func(_ context.Context, _, id string, in services.SubmitInput) (*services.SubmitResult, error) {
		got = in
		if id == "done" {
			return nil, services.ErrInvalidTransition
		}
		return &services.SubmitResult{
			Assignment: &domain.Assignment{ID: id, Status: domain.AssignmentDone},
			Submission: &domain.Submission{ID: "sub1", PointsAwarded: 50},
			Student:    &domain.Student{ID: "s1", Level: 2, ProgressPoints: 30},
		}, nil
	}}
	r := newTestRouter(New(Services{Assignments: as}))

	w := do(r, http.MethodPost, "/assignments/a1/submit", []byte(`{"grade":9,"feedback":"nice","artifacts":{"file":"x.pdf"}}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.Grade == nil || *got.Grade != 9 || got.Feedback != "nice" || !strings.Contains(string(got.Artifacts), "x.pdf") {
		t.Fatalf("input = %+v", got)
	}

	// No body is fine.
	req := httptest.NewRequest(http.MethodPost, "/assignments/a1/submit", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body -> %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/assignments/done/submit", []byte(`{}`))
	if w.Code != http.StatusConflict || decodeError(t, w).Code != ErrCodeInvalidTransition {
		t.Fatalf("resubmit -> %d %s", w.Code, w.Body.String())
	}
}

func TestTokenAndLogin(t *testing.T) {
	authSvc := &fakeAuth{loginFn: func(_ context.Context, email, password string) (*services.Token, error) {
		if email == "t@example.com" && password == "correct-horse" {
			return &services.Token{AccessToken: "jwt", TokenType: "bearer", ExpiresIn: 3600}, nil
		}
		return nil, services.ErrInvalidCredentials
	}}
	r := newTestRouter(New(Services{Auth: authSvc}))

	form := url.Values{"username": {"t@example.com"}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token -> %d %s", w.Code, w.Body.String())
	}
	var tok services.Token
	_ = json.Unmarshal(w.Body.Bytes(), &tok)
	if tok.AccessToken != "jwt" || tok.TokenType != "bearer" {
		t.Fatalf("token = %+v", tok)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token response must not be cached")
	}

	w = do(r, http.MethodPost, "/auth/login", []byte(`{"email":"t@example.com","password":"wrong"}`))
	if w.Code != http.StatusUnauthorized || decodeError(t, w).Code != ErrCodeUnauthorized {
		t.Fatalf("bad login -> %d %s", w.Code, w.Body.String())
	}
}

func TestExportInvoices(t *testing.T) {
	var got services.BillingFilter
	b := &fakeBilling{exportFn: func(_ context.Context, _ string, f services.BillingFilter) ([]byte, error) {
		got = f
		return []byte("PK\x03\x04"), nil
	}}
	r := newTestRouter(New(Services{Billing: b}))

	w := do(r, http.MethodGet, "/invoices/export?status=overdue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("content type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if got.Status != "overdue" {
		t.Fatalf("filter = %+v", got)
	}
}

func TestHealthAndReady(t *testing.T) {
	var readyErr error
	h := New(Services{Ready: func(context.Context) error { return readyErr }})
	r := newTestRouter(h)

	if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health -> %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/health/ready", nil); w.Code != http.StatusOK {
		t.Fatalf("ready -> %d", w.Code)
	}

	readyErr = errors.New("db down")
	w := do(r, http.MethodGet, "/health/ready", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"unavailable"`) {
		t.Fatalf("ready with db down -> %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateBio(t *testing.T) {
	var got services.BioPatch
	pf := &fakeProfiles{updateFn: func(_ context.Context, tutorID, studentID string, p services.BioPatch) (*domain.StudentBio, error) {
		if tutorID != "t1" {
			t.Fatalf("tutor = %q", tutorID)
		}
		got = p
		return &domain.StudentBio{StudentID: studentID, Goals: p.Goals}, nil
	}}
	r := newTestRouter(New(Services{Profiles: pf}))

	w := do(r, http.MethodPut, "/students/s1/bio", []byte(`{"goals":"exam","started_at":"2024-09-01"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("update -> %d %s", w.Code, w.Body.String())
	}
	if got.Goals == nil || *got.Goals != "exam" || got.Notes != nil {
		t.Fatalf("patch = %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("started_at = %v", got.StartedAt)
	}

	w = do(r, http.MethodPut, "/students/s1/bio", []byte(`{"started_at":"01/09/2024"}`))
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("bad date -> %d %s", w.Code, w.Body.String())
	}
}

func TestSetAvatar(t *testing.T) {
	pf := &fakeProfiles{avatarFn: func(_ context.Context, _, studentID, theme string) (*domain.Student, error) {
		if theme != "mage" {
			return nil, services.ErrAvatarThemeNotFound
		}
		return &domain.Student{ID: studentID, AvatarTheme: &theme}, nil
	}}
	r := newTestRouter(New(Services{Profiles: pf}))

	if w := do(r, http.MethodPost, "/students/s1/avatar", []byte(`{"avatar_theme_code":"mage"}`)); w.Code != http.StatusOK {
		t.Fatalf("set -> %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/students/s1/avatar", []byte(`{"avatar_theme_code":"dragon"}`)); w.Code != http.StatusNotFound {
		t.Fatalf("unknown theme -> %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/students/s1/avatar", []byte(`{}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("missing theme -> %d", w.Code)
	}
}

func TestAnalyticsHandlers(t *testing.T) {
	var gotDays int
	an := &fakeAnalytics{
		tempoFn: func(_ context.Context, _, studentID string, days int) (*services.Tempo, error) {
			gotDays = days
			return &services.Tempo{StudentID: studentID, Days: days}, nil
		},
		radarFn: func(context.Context, string) ([]services.PriorityItem, error) {
			return []services.PriorityItem{{StudentID: "s2", Score: 6}, {StudentID: "s1", Score: -1}}, nil
		},
	}
	r := newTestRouter(New(Services{Analytics: an}))

	if w := do(r, http.MethodGet, "/analytics/tempo?student_id=s1&days=7", nil); w.Code != http.StatusOK || gotDays != 7 {
		t.Fatalf("tempo -> %d days=%d", w.Code, gotDays)
	}
	for _, path := range []string{"/analytics/tempo", "/analytics/tempo?student_id=s1&days=week", "/analytics/exam-forecast"} {
		if w := do(r, http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", path, w.Code)
		}
	}

	w := do(r, http.MethodGet, "/analytics/priority-radar", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("radar -> %d", w.Code)
	}
	var body struct {
		Items []services.PriorityItem `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || len(body.Items) != 2 || body.Items[0].StudentID != "s2" {
		t.Fatalf("radar body = %s err=%v", w.Body.String(), err)
	}
}
