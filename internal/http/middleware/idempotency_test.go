package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// memIdemStore is an in-memory IdempotencyStore with the same claim
// semantics as the database-backed one.
type memIdemStore struct {
	mu   sync.Mutex
	recs map[string]*domain.IdempotencyKey
	seq  int

	releases int
}

var errNotPending = errors.New("record is not pending")

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{recs: map[string]*domain.IdempotencyKey{}}
}

func (s *memIdemStore) Claim(_ context.Context, key, hash, method, path string) (*domain.IdempotencyKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[key]; ok {
		return nil, false, nil
	}
	s.seq++
	rec := &domain.IdempotencyKey{
		ID:          strconv.Itoa(s.seq),
		Key:         key,
		RequestHash: hash,
		Method:      method,
		Path:        path,
		State:       domain.IdempotencyPending,
		LockedAt:    time.Now(),
		CreatedAt:   time.Now(),
	}
	s.recs[key] = rec
	cp := *rec
	return &cp, true, nil
}

func (s *memIdemStore) Get(_ context.Context, key string) (*domain.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memIdemStore) byID(id string) *domain.IdempotencyKey {
	for _, r := range s.recs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *memIdemStore) Complete(_ context.Context, id string, status int, ct string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID(id)
	if rec == nil || rec.State != domain.IdempotencyPending {
		return errNotPending
	}
	rec.State = domain.IdempotencyCompleted
	rec.ResponseStatus = status
	rec.ContentType = ct
	rec.ResponseBody = append([]byte(nil), body...)
	return nil
}

func (s *memIdemStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	if rec := s.byID(id); rec != nil && rec.State == domain.IdempotencyPending {
		delete(s.recs, rec.Key)
	}
	return nil
}

func (s *memIdemStore) ReapStale(_ context.Context, key string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok || rec.State != domain.IdempotencyPending || !rec.LockedAt.Before(cutoff) {
		return false, nil
	}
	delete(s.recs, key)
	return true, nil
}

func shortBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5)
}

// newIdemRouter mounts the guard in front of POST /items. The handler
// answers with the value of the "status" query param (default 201) and a
// body carrying a per-call sequence number.
func newIdemRouter(store IdempotencyStore, calls *int32, opts ...func(*IdempotencyOptions)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	o := IdempotencyOptions{Store: store, Wait: time.Second, LockTTL: time.Minute}
	for _, fn := range opts {
		fn(&o)
	}

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set("userID", u)
		}
		c.Next()
	})
	r.Use(Idempotency(o))
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		var in map[string]any
		_ = c.ShouldBindJSON(&in)
		if c.Query("panic") == "1" {
			panic("boom")
		}
		status := http.StatusCreated
		if s := c.Query("status"); s != "" {
			status, _ = strconv.Atoi(s)
		}
		c.JSON(status, gin.H{"seq": n, "echo": in})
	}
	r.POST("/items", handler)
	r.GET("/items", handler)
	return r
}

func postItem(r http.Handler, key, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	s, _ := body["code"].(string)
	return s
}

func TestRequestHash(t *testing.T) {
	a := RequestHash("POST", "/students", "u1", []byte(`{"name":"Ana"}`))
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
	if a != RequestHash("POST", "/students", "u1", []byte(`{"name":"Ana"}`)) {
		t.Fatalf("hash not deterministic")
	}
	for _, other := range []string{
		RequestHash("POST", "/students", "u2", []byte(`{"name":"Ana"}`)),
		RequestHash("POST", "/lessons", "u1", []byte(`{"name":"Ana"}`)),
		RequestHash("POST", "/students", "u1", []byte(`{"name":"Bo"}`)),
	} {
		if other == a {
			t.Fatalf("distinct requests share a hash")
		}
	}
}

func TestIdempotency_NoKeyRunsEveryTime(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	postItem(r, "", `{"a":1}`)
	postItem(r, "", `{"a":1}`)
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestIdempotency_BadKey(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	for _, key := range []string{"has space", "bad/slash", strings.Repeat("k", 201)} {
		w := postItem(r, key, `{}`)
		if w.Code != http.StatusBadRequest || errorCode(t, w) != "bad_idempotency_key" {
			t.Fatalf("key %q -> %d %s", key, w.Code, w.Body.String())
		}
	}
	if calls != 0 {
		t.Fatalf("handler ran for a bad key")
	}
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	w1 := postItem(r, "k-1", `{"name":"Ana"}`)
	if w1.Code != http.StatusCreated {
		t.Fatalf("first -> %d", w1.Code)
	}
	if w1.Header().Get(HeaderIdempotentReplayed) != "" {
		t.Fatalf("first response marked as replay")
	}

	w2 := postItem(r, "k-1", `{"name":"Ana"}`)
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay -> %d", w2.Code)
	}
	if w2.Header().Get(HeaderIdempotentReplayed) != "true" {
		t.Fatalf("missing %s header", HeaderIdempotentReplayed)
	}
	if w2.Body.String() != w1.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", w1.Body.String(), w2.Body.String())
	}
	if !strings.HasPrefix(w2.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content type = %q", w2.Header().Get("Content-Type"))
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotency_KeyReusedWithDifferentRequest(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	postItem(r, "k-2", `{"name":"Ana"}`, "X-Test-User", "u1")

	w := postItem(r, "k-2", `{"name":"Bo"}`, "X-Test-User", "u1")
	if w.Code != http.StatusConflict || errorCode(t, w) != "idempotency_key_reused" {
		t.Fatalf("different body -> %d %s", w.Code, w.Body.String())
	}

	w = postItem(r, "k-2", `{"name":"Ana"}`, "X-Test-User", "u2")
	if w.Code != http.StatusConflict || errorCode(t, w) != "idempotency_key_reused" {
		t.Fatalf("different principal -> %d %s", w.Code, w.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotency_FailureReleasesClaim(t *testing.T) {
	var calls int32
	store := newMemIdemStore()
	r := newIdemRouter(store, &calls)

	req := httptest.NewRequest(http.MethodPost, "/items?status=422", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "k-3")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("first -> %d", w.Code)
	}
	if rec, _ := store.Get(context.Background(), "k-3"); rec != nil {
		t.Fatalf("failed request left a record: %+v", rec)
	}

	req = httptest.NewRequest(http.MethodPost, "/items?status=422", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "k-3")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if calls != 2 {
		t.Fatalf("retry after failure should run the handler; calls = %d", calls)
	}
}

func TestIdempotency_PanicReleasesClaim(t *testing.T) {
	_ = captureLogger(t)
	var calls int32
	store := newMemIdemStore()
	r := newIdemRouter(store, &calls)

	req := httptest.NewRequest(http.MethodPost, "/items?panic=1", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "k-4")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic -> %d", w.Code)
	}
	if store.releases != 1 {
		t.Fatalf("releases = %d", store.releases)
	}
	if rec, _ := store.Get(context.Background(), "k-4"); rec != nil {
		t.Fatalf("panicking request left a record")
	}
}

func TestIdempotency_InProgressTimesOut(t *testing.T) {
	var calls int32
	store := newMemIdemStore()
	hash := RequestHash(http.MethodPost, "/items", anonymousPrincipal, []byte(`{}`))
	if _, _, err := store.Claim(context.Background(), "k-5", hash, http.MethodPost, "/items"); err != nil {
		t.Fatal(err)
	}
	r := newIdemRouter(store, &calls, func(o *IdempotencyOptions) { o.NewBackOff = shortBackOff })

	w := postItem(r, "k-5", `{}`)
	if w.Code != http.StatusConflict || errorCode(t, w) != "idempotency_in_progress" {
		t.Fatalf("in progress -> %d %s", w.Code, w.Body.String())
	}
	if calls != 0 {
		t.Fatalf("handler ran while key was held")
	}
}

func TestIdempotency_TakesOverStaleClaim(t *testing.T) {
	_ = captureLogger(t)
	var calls int32
	store := newMemIdemStore()
	hash := RequestHash(http.MethodPost, "/items", anonymousPrincipal, []byte(`{}`))
	if _, _, err := store.Claim(context.Background(), "k-6", hash, http.MethodPost, "/items"); err != nil {
		t.Fatal(err)
	}
	later := func() time.Time { return time.Now().Add(time.Hour) }
	r := newIdemRouter(store, &calls, func(o *IdempotencyOptions) {
		o.NewBackOff = shortBackOff
		o.Now = later
	})

	w := postItem(r, "k-6", `{}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("takeover -> %d %s", w.Code, w.Body.String())
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	rec, _ := store.Get(context.Background(), "k-6")
	if !rec.Completed() {
		t.Fatalf("record not completed after takeover: %+v", rec)
	}
}

// cutoffStore records the cutoff handed to ReapStale.
type cutoffStore struct {
	*memIdemStore
	cutoff time.Time
}

func (s *cutoffStore) ReapStale(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	s.cutoff = cutoff
	return s.memIdemStore.ReapStale(ctx, key, cutoff)
}

func TestIdempotency_StaleCutoffIsUTC(t *testing.T) {
	_ = captureLogger(t)
	var calls int32
	store := &cutoffStore{memIdemStore: newMemIdemStore()}
	hash := RequestHash(http.MethodPost, "/items", anonymousPrincipal, []byte(`{}`))
	if _, _, err := store.Claim(context.Background(), "k-tz", hash, http.MethodPost, "/items"); err != nil {
		t.Fatal(err)
	}
	west := time.FixedZone("UTC-5", -5*3600)
	r := newIdemRouter(store, &calls, func(o *IdempotencyOptions) {
		o.NewBackOff = shortBackOff
		o.Now = func() time.Time { return time.Now().Add(time.Hour).In(west) }
	})

	if w := postItem(r, "k-tz", `{}`); w.Code != http.StatusCreated {
		t.Fatalf("takeover -> %d %s", w.Code, w.Body.String())
	}
	if store.cutoff.IsZero() || store.cutoff.Location() != time.UTC {
		t.Fatalf("cutoff not normalised: %v", store.cutoff)
	}
}

func TestIdempotency_ConcurrentRequestWaitsAndReplays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemIdemStore()
	started := make(chan struct{})
	proceed := make(chan struct{})
	var calls int32

	r := gin.New()
	r.Use(RequestID())
	r.Use(Idempotency(IdempotencyOptions{Store: store, Wait: 2 * time.Second, LockTTL: time.Minute}))
	r.POST("/items", func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-proceed
		}
		c.JSON(http.StatusCreated, gin.H{"id": "it-1"})
	})

	var wg sync.WaitGroup
	results := make([]*httptest.ResponseRecorder, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = postItem(r, "k-7", `{}`)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = postItem(r, "k-7", `{}`)
	}()
	time.Sleep(50 * time.Millisecond)
	close(proceed)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	for i, w := range results {
		if w.Code != http.StatusCreated {
			t.Fatalf("request %d -> %d %s", i, w.Code, w.Body.String())
		}
	}
	if results[1].Header().Get(HeaderIdempotentReplayed) != "true" {
		t.Fatalf("waiting request was not served from the record")
	}
	if results[0].Body.String() != results[1].Body.String() {
		t.Fatalf("bodies differ")
	}
}

func TestIdempotency_OnlyPOST(t *testing.T) {
	var calls int32
	r := newIdemRouter(newMemIdemStore(), &calls)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-8")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("GET should ignore the key; calls = %d", calls)
	}
}

func TestIdempotency_BodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 8)
		c.Next()
	})
	r.Use(Idempotency(IdempotencyOptions{Store: newMemIdemStore(), Wait: time.Second, LockTTL: time.Minute}))
	r.POST("/items", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := postItem(r, "k-9", `{"name":"far too long"}`)
	if w.Code != http.StatusRequestEntityTooLarge || errorCode(t, w) != "payload_too_large" {
		t.Fatalf("-> %d %s", w.Code, w.Body.String())
	}
}

func TestIdempotency_HelpersExposeKeyAndReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemIdemStore()
	var sawKey string

	r := gin.New()
	r.Use(RequestID())
	r.Use(Idempotency(IdempotencyOptions{Store: store, Wait: time.Second, LockTTL: time.Minute}))
	r.Use(func(c *gin.Context) {
		sawKey, _ = GetIdempotencyKey(c)
		c.Next()
	})
	r.POST("/items", func(c *gin.Context) { c.JSON(http.StatusCreated, gin.H{}) })

	postItem(r, "k-10", `{}`)
	if sawKey != "k-10" {
		t.Fatalf("GetIdempotencyKey = %q", sawKey)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsReplay(c) {
		t.Fatalf("fresh context reported as replay")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("IsReplay false after replay flag")
	}
}
