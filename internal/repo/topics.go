package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CreateTopic inserts a topic; a taken name yields ErrDuplicate.
func CreateTopic(ctx context.Context, db *gorm.DB, name string) (*domain.Topic, error) {
	t := &domain.Topic{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, mapCreateErr(err)
	}
	return t, nil
}

// ListTopics returns all topics ordered by name.
func ListTopics(ctx context.Context, db *gorm.DB) ([]domain.Topic, error) {
	var out []domain.Topic
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// GetTopic fetches a topic by id.
func GetTopic(ctx context.Context, db *gorm.DB, id string) (*domain.Topic, error) {
	var t domain.Topic
	if err := db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// BumpHotspot atomically adds delta to the (student, topic) heat, creating
// the row on first use. Heat never drops below zero.
func BumpHotspot(ctx context.Context, db *gorm.DB, studentID, topicID string, delta int) (*domain.ErrorHotspot, error) {
	now := time.Now().UTC()
	initial := delta
	if initial < 0 {
		initial = 0
	}
	row := &domain.ErrorHotspot{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TopicID:   topicID,
		Heat:      initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "topic_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"heat":       gorm.Expr("CASE WHEN error_hotspots.heat + ? < 0 THEN 0 ELSE error_hotspots.heat + ? END", delta, delta),
			"updated_at": now,
		}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	var out domain.ErrorHotspot
	err = db.WithContext(ctx).
		Where("student_id = ? AND topic_id = ?", studentID, topicID).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListHotspots returns a student's hotspots, hottest first.
func ListHotspots(ctx context.Context, db *gorm.DB, studentID string) ([]domain.ErrorHotspot, error) {
	var out []domain.ErrorHotspot
	err := db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("heat DESC, updated_at DESC").
		Find(&out).Error
	return out, err
}
