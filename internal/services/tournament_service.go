package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// TournamentInput is the payload of TournamentService.Create.
type TournamentInput struct {
	Name        string
	Description string
	StartsAt    *time.Time
	EndsAt      *time.Time
}

// TournamentService runs competitions among a tutor's students.
type TournamentService struct {
	DB *gorm.DB
}

// List returns the tutor's tournaments.
func (s *TournamentService) List(ctx context.Context, tutorID string) ([]domain.Tournament, error) {
	return repo.ListTournaments(ctx, s.DB, tutorID)
}

// Create validates and stores a tournament.
func (s *TournamentService) Create(ctx context.Context, tutorID string, in TournamentInput) (*domain.Tournament, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, invalid("ends_at must not be before starts_at")
	}
	t := &domain.Tournament{
		TutorID:     tutorID,
		Name:        name,
		Description: in.Description,
		StartsAt:    utcPtr(in.StartsAt),
		EndsAt:      utcPtr(in.EndsAt),
	}
	if err := repo.CreateTournament(ctx, s.DB, t); err != nil {
		return nil, err
	}
	audit(ctx, "tournament.create", tutorID, t.ID)
	return t, nil
}

func (s *TournamentService) get(ctx context.Context, tutorID, id string) (*domain.Tournament, error) {
	t, err := repo.GetTournament(ctx, s.DB, id, tutorID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTournamentNotFound
	}
	return t, err
}

// Join enrolls one of the tutor's students.
func (s *TournamentService) Join(ctx context.Context, tutorID, tournamentID, studentID string) (*domain.TournamentParticipant, error) {
	if _, err := s.get(ctx, tutorID, tournamentID); err != nil {
		return nil, err
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	p, err := repo.AddParticipant(ctx, s.DB, tournamentID, studentID)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAlreadyJoined
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "tournament.join", tutorID, tournamentID)
	return p, nil
}

// Score adds points to a participant atomically. Points may be negative.
func (s *TournamentService) Score(ctx context.Context, tutorID, tournamentID, studentID string, points int) (*domain.TournamentParticipant, error) {
	if points == 0 {
		return nil, invalid("points must not be zero")
	}
	if _, err := s.get(ctx, tutorID, tournamentID); err != nil {
		return nil, err
	}
	p, err := repo.AddScore(ctx, s.DB, tournamentID, studentID, points)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, err
	}
	audit(ctx, "tournament.score", tutorID, tournamentID)
	return p, nil
}

// Leaderboard ranks participants by points, earliest joiner first on ties.
func (s *TournamentService) Leaderboard(ctx context.Context, tutorID, tournamentID string) ([]repo.LeaderboardRow, error) {
	if _, err := s.get(ctx, tutorID, tournamentID); err != nil {
		return nil, err
	}
	rows, err := repo.Leaderboard(ctx, s.DB, tournamentID)
	if rows == nil && err == nil {
		rows = []repo.LeaderboardRow{}
	}
	return rows, err
}
