package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-tutor-backend/internal/repo"
)

// Analytics tuning. The radar always looks at the default tempo window.
const (
	DefaultTempoDays = 30
	MaxTempoDays     = 365

	forecastBase          = 40
	forecastPerSubmission = 2
	forecastCap           = 100

	radarLateWeight  = 2
	radarTempoWeight = 10
)

// Tempo is how often a student submitted work over a window of days.
type Tempo struct {
	StudentID       string  `json:"student_id"`
	Days            int     `json:"days"`
	Submissions     int64   `json:"submissions"`
	FrequencyPerDay float64 `json:"frequency_per_day"`
}

// Forecast is the predicted exam score of a student, on a 0..100 scale.
type Forecast struct {
	StudentID      string `json:"student_id"`
	Submissions    int64  `json:"submissions"`
	PredictedScore int    `json:"predicted_score"`
}

// PriorityItem ranks a student by how much attention they need. Higher
// Score means more urgent.
type PriorityItem struct {
	StudentID       string  `json:"student_id"`
	Name            string  `json:"name"`
	Level           int     `json:"level"`
	Score           float64 `json:"score"`
	LateAssignments int64   `json:"late_assignments"`
	Heat            int64   `json:"heat"`
	FrequencyPerDay float64 `json:"frequency_per_day"`
}

// AnalyticsService derives progress indicators from submissions, late
// assignments and error heat.
type AnalyticsService struct {
	DB *gorm.DB
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Tempo counts the student's submissions over the last days days. Zero
// means DefaultTempoDays.
func (s *AnalyticsService) Tempo(ctx context.Context, tutorID, studentID string, days int) (*Tempo, error) {
	if days == 0 {
		days = DefaultTempoDays
	}
	if days < 1 || days > MaxTempoDays {
		return nil, invalid("days must be between 1 and %d", MaxTempoDays)
	}
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	n, err := repo.CountSubmissions(ctx, s.DB, studentID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	return &Tempo{
		StudentID:       studentID,
		Days:            days,
		Submissions:     n,
		FrequencyPerDay: float64(n) / float64(days),
	}, nil
}

// ExamForecast predicts a score from the total number of submissions:
// 40 plus 2 per submission, capped at 100.
func (s *AnalyticsService) ExamForecast(ctx context.Context, tutorID, studentID string) (*Forecast, error) {
	if _, err := ownedStudent(ctx, s.DB, tutorID, studentID); err != nil {
		return nil, err
	}
	n, err := repo.CountSubmissions(ctx, s.DB, studentID, time.Time{})
	if err != nil {
		return nil, err
	}
	return &Forecast{
		StudentID:      studentID,
		Submissions:    n,
		PredictedScore: ForecastScore(n),
	}, nil
}

// ForecastScore is the scoring rule behind ExamForecast.
func ForecastScore(submissions int64) int {
	score := int64(forecastBase) + submissions*forecastPerSubmission
	if score > forecastCap {
		return forecastCap
	}
	return int(score)
}

// PriorityScore weighs late work and error heat against recent activity.
func PriorityScore(late, heat int64, frequencyPerDay float64) float64 {
	return float64(late*radarLateWeight+heat) - frequencyPerDay*radarTempoWeight
}

// PriorityRadar scores every student of the tutor and returns them most
// urgent first. Ties keep name order.
func (s *AnalyticsService) PriorityRadar(ctx context.Context, tutorID string) ([]PriorityItem, error) {
	since := s.now().AddDate(0, 0, -DefaultTempoDays)
	inputs, err := repo.PriorityInputs(ctx, s.DB, tutorID, since)
	if err != nil {
		return nil, err
	}

	out := make([]PriorityItem, 0, len(inputs))
	for _, in := range inputs {
		freq := float64(in.RecentSubmissions) / DefaultTempoDays
		out = append(out, PriorityItem{
			StudentID:       in.StudentID,
			Name:            in.Name,
			Level:           in.Level,
			Score:           PriorityScore(in.LateAssignments, in.Heat, freq),
			LateAssignments: in.LateAssignments,
			Heat:            in.Heat,
			FrequencyPerDay: freq,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
