package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// CreateTournament inserts a tournament owned by the tutor.
func CreateTournament(ctx context.Context, db *gorm.DB, t *domain.Tournament) error {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(t).Error
}

// ListTournaments returns the tutor's tournaments, newest first.
func ListTournaments(ctx context.Context, db *gorm.DB, tutorID string) ([]domain.Tournament, error) {
	var out []domain.Tournament
	err := db.WithContext(ctx).
		Where("tutor_id = ?", tutorID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// GetTournament fetches a tournament owned by tutorID.
func GetTournament(ctx context.Context, db *gorm.DB, id, tutorID string) (*domain.Tournament, error) {
	var t domain.Tournament
	if err := db.WithContext(ctx).First(&t, "id = ? AND tutor_id = ?", id, tutorID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// AddParticipant enrolls a student; enrolling twice yields ErrDuplicate.
func AddParticipant(ctx context.Context, db *gorm.DB, tournamentID, studentID string) (*domain.TournamentParticipant, error) {
	p := &domain.TournamentParticipant{
		TournamentID: tournamentID,
		StudentID:    studentID,
		JoinedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, mapCreateErr(err)
	}
	return p, nil
}

// AddScore increments a participant's points in a single UPDATE.
func AddScore(ctx context.Context, db *gorm.DB, tournamentID, studentID string, points int) (*domain.TournamentParticipant, error) {
	q := db.WithContext(ctx)
	res := q.Model(&domain.TournamentParticipant{}).
		Where("tournament_id = ? AND student_id = ?", tournamentID, studentID).
		Update("points", gorm.Expr("points + ?", points))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var p domain.TournamentParticipant
	if err := q.First(&p, "tournament_id = ? AND student_id = ?", tournamentID, studentID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// LeaderboardRow is one ranked participant.
type LeaderboardRow struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	Points    int       `json:"points"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Leaderboard returns participants by points (desc), earliest joiner first on ties.
func Leaderboard(ctx context.Context, db *gorm.DB, tournamentID string) ([]LeaderboardRow, error) {
	var out []LeaderboardRow
	err := db.WithContext(ctx).
		Table("tournament_participants AS tp").
		Select("tp.student_id, s.name, tp.points, tp.joined_at").
		Joins("JOIN students s ON s.id = tp.student_id").
		Where("tp.tournament_id = ?", tournamentID).
		Order("tp.points DESC, tp.joined_at ASC").
		Scan(&out).Error
	return out, err
}
