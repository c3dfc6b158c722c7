package gorm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/pkg/models"
)

// DefaultFeedbackLimit is how many reviews ListFeedback returns by default.
const DefaultFeedbackLimit = 50

var _ db.FeedbackStore = (*FeedbackStore)(nil)

// FeedbackStore persists app reviews.
type FeedbackStore struct {
	db *gorm.DB
}

// NewFeedbackStore creates a new feedback store.
func NewFeedbackStore(store *Store) *FeedbackStore {
	return &FeedbackStore{db: store.DB}
}

// SubmitFeedback stores a review. Rating must be 1..5 and message non-empty.
func (s *FeedbackStore) SubmitFeedback(ctx context.Context, patientID string, rating int, message string) (*models.Feedback, error) {
	message = strings.TrimSpace(message)
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidValue)
	}
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidValue)
	}

	row := &Feedback{
		Message:   message,
		Rating:    rating,
		CreatedAt: time.Now().UTC(),
	}
	if id := strings.TrimSpace(patientID); id != "" {
		row.PatientID = &id
	}

	if err := s.db.WithContext(ctx).Omit("Patient").Create(row).Error; err != nil {
		return nil, mapError("submit feedback", err)
	}
	return row.ToModel(), nil
}

// ListFeedback returns the newest reviews with the author's username.
// Reviews whose author has no profile show UnknownUsername.
func (s *FeedbackStore) ListFeedback(ctx context.Context, limit int) ([]*models.Feedback, error) {
	var rows []Feedback
	if err := s.db.WithContext(ctx).
		Preload("Patient").
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit, DefaultFeedbackLimit)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	out := make([]*models.Feedback, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToModel())
	}
	return out, nil
}

// DeleteFeedback removes a review by id.
func (s *FeedbackStore) DeleteFeedback(ctx context.Context, id string) error {
	if err := checkRowID("delete feedback", id); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Feedback{})
	if res.Error != nil {
		return mapError("delete feedback", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete feedback %s: %w", id, ErrNotFound)
	}
	return nil
}
