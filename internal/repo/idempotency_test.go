package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// printfRecorder collects the lines a GORM logger writes.
type printfRecorder struct{ lines []string }

func (r *printfRecorder) Printf(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestClaimIdempotencyKey_SecondClaimIsDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := ClaimIdempotencyKey(ctx, db, "k-1", "h1", "POST", "/students")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if rec.State != domain.IdempotencyPending || rec.ID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := ClaimIdempotencyKey(ctx, db, "k-1", "h2", "POST", "/students"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestCompleteIdempotencyKey_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := ClaimIdempotencyKey(ctx, db, "k-2", "h", "POST", "/lessons")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	body := []byte(`{"id":"abc"}`)
	if err := CompleteIdempotencyKey(ctx, db, rec.ID, 201, "application/json; charset=utf-8", body); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := CompleteIdempotencyKey(ctx, db, rec.ID, 500, "text/plain", []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second complete: want ErrNotFound, got %v", err)
	}

	got, err := GetIdempotencyKey(ctx, db, "k-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Completed() || got.ResponseStatus != 201 || string(got.ResponseBody) != string(body) {
		t.Fatalf("stored response mutated: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatalf("CompletedAt not set")
	}
}

func TestReleaseIdempotencyKey_AllowsReclaim_ButKeepsCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, _ := ClaimIdempotencyKey(ctx, db, "k-3", "h", "POST", "/x")
	if err := ReleaseIdempotencyKey(ctx, db, rec.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := GetIdempotencyKey(ctx, db, "k-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after release, got %v", err)
	}

	rec2, err := ClaimIdempotencyKey(ctx, db, "k-3", "h", "POST", "/x")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := CompleteIdempotencyKey(ctx, db, rec2.ID, 200, "application/json", []byte("{}")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := ReleaseIdempotencyKey(ctx, db, rec2.ID); err != nil {
		t.Fatalf("release completed: %v", err)
	}
	if got, err := GetIdempotencyKey(ctx, db, "k-3"); err != nil || !got.Completed() {
		t.Fatalf("completed record must survive release, got %+v err=%v", got, err)
	}
}

func TestReapStaleIdempotencyKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := ClaimIdempotencyKey(ctx, db, "k-4", "h", "POST", "/x"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	reaped, err := ReapStaleIdempotencyKey(ctx, db, "k-4", time.Now().UTC().Add(-time.Hour))
	if err != nil || reaped {
		t.Fatalf("fresh claim must not be reaped: reaped=%v err=%v", reaped, err)
	}

	reaped, err = ReapStaleIdempotencyKey(ctx, db, "k-4", time.Now().UTC().Add(time.Hour))
	if err != nil || !reaped {
		t.Fatalf("stale claim should be reaped: reaped=%v err=%v", reaped, err)
	}
	if _, err := ClaimIdempotencyKey(ctx, db, "k-4", "h", "POST", "/x"); err != nil {
		t.Fatalf("claim after reap: %v", err)
	}
}

func TestReapStaleIdempotencyKey_NonUTCCutoff(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	west := time.FixedZone("UTC-5", -5*3600)
	east := time.FixedZone("UTC+9", 9*3600)

	if _, err := ClaimIdempotencyKey(ctx, db, "k-tz", "h", "POST", "/x"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// An hour before the lock, expressed east of UTC: its wall clock reads later.
	reaped, err := ReapStaleIdempotencyKey(ctx, db, "k-tz", time.Now().Add(-time.Hour).In(east))
	if err != nil || reaped {
		t.Fatalf("fresh claim must not be reaped: reaped=%v err=%v", reaped, err)
	}

	// An hour after the lock, expressed west of UTC: its wall clock reads earlier.
	reaped, err = ReapStaleIdempotencyKey(ctx, db, "k-tz", time.Now().Add(time.Hour).In(west))
	if err != nil || !reaped {
		t.Fatalf("stale claim should be reaped: reaped=%v err=%v", reaped, err)
	}
}

func TestClaimIdempotencyKey_LostRaceIsNotLogged(t *testing.T) {
	rec := &printfRecorder{}
	db := newTestDB(t).Session(&gorm.Session{
		Logger: logger.New(rec, logger.Config{LogLevel: logger.Warn}),
	})
	ctx := context.Background()

	if _, err := ClaimIdempotencyKey(ctx, db, "k-race", "h", "POST", "/x"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := ClaimIdempotencyKey(ctx, db, "k-race", "h", "POST", "/x"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	if len(rec.lines) != 0 {
		t.Fatalf("duplicate claim was logged: %q", rec.lines)
	}

	// The logger itself still reports real failures.
	_ = db.WithContext(ctx).Exec("SELECT * FROM no_such_table").Error
	if len(rec.lines) == 0 {
		t.Fatalf("expected the failing query to be logged")
	}
}
