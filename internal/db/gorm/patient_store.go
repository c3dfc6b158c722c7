package gorm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/pkg/models"
)

var _ db.PatientStore = (*PatientStore)(nil)

// PatientStore persists patient profiles.
type PatientStore struct {
	db *gorm.DB
}

// NewPatientStore creates a new patient store.
func NewPatientStore(store *Store) *PatientStore {
	return &PatientStore{db: store.DB}
}

// UpsertPatient creates the profile or updates its username and phone.
func (s *PatientStore) UpsertPatient(ctx context.Context, id, username, phone string) (*models.Patient, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidValue)
	}

	row := &Patient{
		ID:        id,
		Username:  strings.TrimSpace(username),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "phone"}),
		}).
		Create(row).Error; err != nil {
		return nil, mapError("upsert patient", err)
	}
	return row.ToModel(), nil
}

// GetPatient returns the profile, or nil when it does not exist.
func (s *PatientStore) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var row Patient
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return row.ToModel(), nil
}
