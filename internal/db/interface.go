// Package db defines the store interfaces shared by the relay and its backends.
package db

import (
	"context"

	"github.com/thebtf/hearme/internal/scoring"
	"github.com/thebtf/hearme/pkg/models"
)

// Pinger is a store that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConversationLog is the append-only record of predicted messages.
type ConversationLog interface {
	Pinger
	Append(ctx context.Context, entry *models.ConversationEntry) (int64, error)
	CountByPrediction(ctx context.Context) (map[string]int, error)
}

// MoodReader defines read operations for mood entries.
type MoodReader interface {
	scoring.HistorySource
	LastMoodEntry(ctx context.Context, patientID string) (*models.MoodEntry, error)
	ListRecent(ctx context.Context, limit int) ([]*models.MoodEntry, error)
}

// MoodWriter defines write operations for mood entries.
type MoodWriter interface {
	RecordMood(ctx context.Context, patientID, moodName string, activities []string) (*models.MoodEntry, error)
	DeleteMoodEntry(ctx context.Context, patientID, entryID string) error
}

// MoodStore combines read and write operations for mood entries.
type MoodStore interface {
	MoodReader
	MoodWriter
}

// FeedbackStore persists app reviews.
type FeedbackStore interface {
	SubmitFeedback(ctx context.Context, patientID string, rating int, message string) (*models.Feedback, error)
	ListFeedback(ctx context.Context, limit int) ([]*models.Feedback, error)
	DeleteFeedback(ctx context.Context, id string) error
}

// PatientStore persists patient profiles.
type PatientStore interface {
	UpsertPatient(ctx context.Context, id, username, phone string) (*models.Patient, error)
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
}
