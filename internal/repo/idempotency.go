// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the storage side of the idempotency
// guard: claiming a key, completing it once with the captured response,
// releasing failed claims, and reclaiming abandoned ones.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// ClaimIdempotencyKey inserts a pending record for key. The unique index on
// key makes this the arbitration point between concurrent requests: exactly
// one insert succeeds, every other caller gets ErrDuplicate. Losing that race
// is routine, so the insert runs without SQL error logging.
func ClaimIdempotencyKey(ctx context.Context, db *gorm.DB, key, requestHash, method, path string) (*domain.IdempotencyKey, error) {
	now := time.Now().UTC()
	rec := &domain.IdempotencyKey{
		ID:          uuid.NewString(),
		Key:         key,
		RequestHash: requestHash,
		Method:      method,
		Path:        path,
		State:       domain.IdempotencyPending,
		LockedAt:    now,
		CreatedAt:   now,
	}
	quiet := db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)})
	if err := quiet.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, mapCreateErr(err)
	}
	return rec, nil
}

// GetIdempotencyKey returns the record for key or ErrNotFound.
func GetIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.IdempotencyKey, error) {
	var rec domain.IdempotencyKey
	if err := db.WithContext(ctx).Where("key = ?", key).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// CompleteIdempotencyKey stores the response for a pending claim. The state
// guard makes completion happen at most once; a second call (or a call for a
// claim that was released or reclaimed) returns ErrNotFound.
func CompleteIdempotencyKey(ctx context.Context, db *gorm.DB, id string, status int, contentType string, body []byte) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyKey{}).
		Where("id = ? AND state = ?", id, domain.IdempotencyPending).
		Updates(map[string]any{
			"state":           domain.IdempotencyCompleted,
			"response_status": status,
			"content_type":    contentType,
			"response_body":   body,
			"completed_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotencyKey drops a pending claim so the client may retry after
// a failed attempt. Completed records are never touched.
func ReleaseIdempotencyKey(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Where("id = ? AND state = ?", id, domain.IdempotencyPending).
		Delete(&domain.IdempotencyKey{}).Error
}

// ReapStaleIdempotencyKey deletes a pending claim on key that was locked
// before cutoff, which happens when the owning process died mid-request.
// It reports whether a row was removed. locked_at is stored in UTC, and
// SQLite compares timestamps as text, so cutoff is normalised first.
func ReapStaleIdempotencyKey(ctx context.Context, db *gorm.DB, key string, cutoff time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Where("key = ? AND state = ? AND locked_at < ?", key, domain.IdempotencyPending, cutoff.UTC()).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected > 0, res.Error
}
