package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// TopicService manages the shared topic catalogue and per-student error heatmaps.
type TopicService struct {
	DB *gorm.DB
}

// List returns every topic.
func (s *TopicService) List(ctx context.Context) ([]domain.Topic, error) {
	return repo.ListTopics(ctx, s.DB)
}

// Create adds a topic with a unique name.
func (s *TopicService) Create(ctx context.Context, userID, name string) (*domain.Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if utf8.RuneCountInString(name) > 255 {
		return nil, invalid("name is too long")
	}
	t, err := repo.CreateTopic(ctx, s.DB, name)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrTopicExists
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "topic.create", userID, t.ID)
	return t, nil
}

// Bump adds delta to the student's heat on a topic. Heat never drops below zero.
func (s *TopicService) Bump(ctx context.Context, tutorID, studentID, topicID string, delta int) (*domain.ErrorHotspot, error) {
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	if _, err := repo.GetTopic(ctx, s.DB, topicID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return repo.BumpHotspot(ctx, s.DB, studentID, topicID, delta)
}

// Heatmap returns the student's hotspots, hottest first.
func (s *TopicService) Heatmap(ctx context.Context, tutorID, studentID string) ([]domain.ErrorHotspot, error) {
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	return repo.ListHotspots(ctx, s.DB, studentID)
}
