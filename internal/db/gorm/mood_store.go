package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/hearme/internal/catalog"
	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/pkg/models"
)

var _ db.MoodStore = (*MoodStore)(nil)

// MoodStore persists mood entries and their activity tags.
type MoodStore struct {
	db      *gorm.DB
	catalog *catalog.Catalog
}

// NewMoodStore creates a new mood store. A nil catalog uses the embedded one.
func NewMoodStore(store *Store, cat *catalog.Catalog) *MoodStore {
	if cat == nil {
		cat = catalog.Default()
	}
	return &MoodStore{db: store.DB, catalog: cat}
}

// SaveMood records a mood for the patient. The name must be in the vocabulary.
func (s *MoodStore) SaveMood(ctx context.Context, patientID, moodName string) (*models.MoodEntry, error) {
	row, err := s.newEntry(patientID, moodName)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, mapError("save mood", err)
	}
	return row.ToModel(), nil
}

// SaveActivities tags an existing entry with activities in one batch insert.
// Blank and repeated names are dropped.
func (s *MoodStore) SaveActivities(ctx context.Context, entryID string, names []string) ([]models.ActivityTag, error) {
	rows := s.activityRows(entryID, names)
	if len(rows) == 0 {
		return []models.ActivityTag{}, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, mapError("save activities", err)
	}
	return (&MoodEntry{Activities: rows}).ToModel().Activities, nil
}

// RecordMood saves a mood and its activities in one transaction.
func (s *MoodStore) RecordMood(ctx context.Context, patientID, moodName string, activities []string) (*models.MoodEntry, error) {
	row, err := s.newEntry(patientID, moodName)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Activities").Create(row).Error; err != nil {
			return err
		}
		tags := s.activityRows(row.ID, activities)
		if len(tags) > 0 {
			if err := tx.Create(&tags).Error; err != nil {
				return err
			}
		}
		row.Activities = tags
		return nil
	})
	if err != nil {
		return nil, mapError("record mood", err)
	}
	return row.ToModel(), nil
}

// LastMoodEntry returns the patient's newest entry, or nil when there is none.
func (s *MoodStore) LastMoodEntry(ctx context.Context, patientID string) (*models.MoodEntry, error) {
	var row MoodEntry
	err := s.db.WithContext(ctx).
		Preload("Activities", orderTags).
		Where("patient_id = ?", patientID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last mood entry: %w", err)
	}
	return row.ToModel(), nil
}

// MoodHistory returns the patient's entries newest first with activities attached.
// A limit of zero or less returns the whole history.
func (s *MoodStore) MoodHistory(ctx context.Context, patientID string, limit int) ([]*models.MoodEntry, error) {
	query := s.db.WithContext(ctx).
		Preload("Activities", orderTags).
		Where("patient_id = ?", patientID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []MoodEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("mood history: %w", err)
	}

	out := make([]*models.MoodEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToModel())
	}
	return out, nil
}

// ListRecent returns the newest entries across all patients.
func (s *MoodStore) ListRecent(ctx context.Context, limit int) ([]*models.MoodEntry, error) {
	var rows []MoodEntry
	if err := s.db.WithContext(ctx).
		Preload("Activities", orderTags).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit, 50)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list moods: %w", err)
	}

	out := make([]*models.MoodEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToModel())
	}
	return out, nil
}

// DeleteMoodEntry removes one of the patient's entries. Its tags go with it.
func (s *MoodStore) DeleteMoodEntry(ctx context.Context, patientID, entryID string) error {
	if err := checkRowID("delete mood entry", entryID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND patient_id = ?", entryID, patientID).Delete(&MoodEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// The FK cascades; the explicit delete keeps this correct on schemas created without it.
		return tx.Where("mood_entry_id = ?", entryID).Delete(&MoodActivity{}).Error
	})
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete mood entry %s: %w", entryID, ErrNotFound)
	}
	return mapError("delete mood entry", err)
}

func (s *MoodStore) newEntry(patientID, moodName string) (*MoodEntry, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidValue)
	}
	mood, ok := s.catalog.MoodByName(moodName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mood %q", ErrInvalidValue, moodName)
	}
	return &MoodEntry{
		PatientID: patientID,
		Mood:      mood.Name,
		Scale:     mood.Scale,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// activityRows builds tag rows in order, using catalog spelling for known activities.
func (s *MoodStore) activityRows(entryID string, names []string) []MoodActivity {
	rows := make([]MoodActivity, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if a, ok := s.catalog.Activity(name); ok {
			name = a.Name
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		rows = append(rows, MoodActivity{
			MoodEntryID:  entryID,
			ActivityName: name,
			Position:     len(rows),
		})
	}
	return rows
}

func orderTags(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
