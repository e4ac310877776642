package domain

import "time"

// Idempotency key states.
const (
	IdempotencyPending   = "pending"
	IdempotencyCompleted = "completed"
)

// IdempotencyKey records the outcome of a POST that carried an
// Idempotency-Key header. A row is claimed in the pending state before the
// handler runs and completed exactly once with the captured response.
// Completed rows are immutable and serve replays byte-for-byte.
type IdempotencyKey struct {
	ID             string     `gorm:"type:char(36);primaryKey"`
	Key            string     `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_key"`
	RequestHash    string     `gorm:"type:char(64);not null"`
	Method         string     `gorm:"type:varchar(8);not null"`
	Path           string     `gorm:"type:varchar(512);not null"`
	State          string     `gorm:"type:varchar(16);not null;default:'pending';check:state IN ('pending','completed')"`
	ResponseStatus int        `gorm:"not null;default:0"`
	ContentType    string     `gorm:"type:varchar(128)"`
	ResponseBody   []byte
	LockedAt       time.Time  `gorm:"not null;index"`
	CreatedAt      time.Time  `gorm:"not null"`
	CompletedAt    *time.Time
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// Completed reports whether the stored response can be replayed.
func (k *IdempotencyKey) Completed() bool {
	return k != nil && k.State == IdempotencyCompleted
}
