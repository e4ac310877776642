package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// MemInput is the payload of MemService.Create.
type MemInput struct {
	URL       string
	Caption   string
	StudentID *string
}

// MemService manages reward images.
type MemService struct {
	DB *gorm.DB
}

// List returns the tutor's mems, optionally only those given to studentID.
func (s *MemService) List(ctx context.Context, tutorID, studentID string) ([]domain.Mem, error) {
	if studentID != "" {
		if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
			return nil, err
		}
	}
	return repo.ListMems(ctx, s.DB, tutorID, studentID)
}

// Create stores a mem. The URL must be absolute http(s).
func (s *MemService) Create(ctx context.Context, tutorID string, in MemInput) (*domain.Mem, error) {
	raw := strings.TrimSpace(in.URL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid("url must be an absolute http(s) URL")
	}
	if in.StudentID != nil && *in.StudentID == "" {
		in.StudentID = nil
	}
	if in.StudentID != nil {
		if _, err := ownedStudent(ctx, s.DB, tutorID, *in.StudentID); err != nil {
			return nil, err
		}
	}
	m := &domain.Mem{
		TutorID:   tutorID,
		StudentID: in.StudentID,
		URL:       raw,
		Caption:   strings.TrimSpace(in.Caption),
	}
	if err := repo.CreateMem(ctx, s.DB, m); err != nil {
		return nil, err
	}
	audit(ctx, "mem.create", tutorID, m.ID)
	return m, nil
}

// Delete removes one of the tutor's mems.
func (s *MemService) Delete(ctx context.Context, tutorID, id string) error {
	err := repo.DeleteMem(ctx, s.DB, id, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMemNotFound
	}
	if err != nil {
		return err
	}
	audit(ctx, "mem.delete", tutorID, id)
	return nil
}
