package gorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/hearme/pkg/models"
)

// GORM Models

// Patient is a patient profile. Ids come from the external auth provider.
type Patient struct {
	CreatedAt time.Time `gorm:"not null"`
	ID        string    `gorm:"primaryKey;type:text"`
	Username  string    `gorm:"type:text"`
	Phone     string    `gorm:"type:text"`
}

func (Patient) TableName() string { return "patient" }

// MoodEntry is a stored self-reported mood.
type MoodEntry struct {
	CreatedAt  time.Time      `gorm:"not null;index:idx_mood_entries_patient_created,priority:2,sort:desc"`
	ID         string         `gorm:"primaryKey;type:uuid"`
	PatientID  string         `gorm:"type:text;not null;index:idx_mood_entries_patient_created,priority:1"`
	Mood       string         `gorm:"type:text;not null"`
	Activities []MoodActivity `gorm:"foreignKey:MoodEntryID;constraint:OnDelete:CASCADE"`
	Scale      int            `gorm:"not null;check:chk_mood_entries_scale,scale BETWEEN 1 AND 5"`
}

func (MoodEntry) TableName() string { return "mood_entries" }

// BeforeCreate assigns an id and timestamp when missing.
func (e *MoodEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MoodActivity tags a mood entry with an activity. Rows go away with their entry.
type MoodActivity struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	MoodEntryID  string `gorm:"type:uuid;not null;index"`
	ActivityName string `gorm:"type:text;not null;index"`
	Position     int    `gorm:"not null;default:0"`
}

func (MoodActivity) TableName() string { return "mood_activities" }

// BeforeCreate assigns an id when missing.
func (a *MoodActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Feedback is an app review. The patient profile is optional, so no foreign key
// constraint is created for it.
type Feedback struct {
	CreatedAt time.Time `gorm:"not null;index:idx_feedbacks_created,sort:desc"`
	Patient   *Patient  `gorm:"foreignKey:PatientID;references:ID;-:migration"`
	ID        string    `gorm:"primaryKey;type:uuid"`
	PatientID *string   `gorm:"type:text;index"`
	Message   string    `gorm:"type:text;not null"`
	Rating    int       `gorm:"not null;check:chk_feedbacks_rating,rating BETWEEN 1 AND 5"`
}

func (Feedback) TableName() string { return "feedbacks" }

// BeforeCreate assigns an id and timestamp when missing.
func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ToModel converts the row into the domain model.
func (e *MoodEntry) ToModel() *models.MoodEntry {
	out := &models.MoodEntry{
		ID:         e.ID,
		PatientID:  e.PatientID,
		MoodName:   e.Mood,
		Scale:      e.Scale,
		CreatedAt:  e.CreatedAt,
		Activities: make([]models.ActivityTag, 0, len(e.Activities)),
	}
	for _, a := range e.Activities {
		out.Activities = append(out.Activities, models.ActivityTag{
			ID:           a.ID,
			MoodEntryID:  a.MoodEntryID,
			ActivityName: a.ActivityName,
		})
	}
	return out
}

// ToModel converts the row into the domain model, filling the username.
func (f *Feedback) ToModel() *models.Feedback {
	out := &models.Feedback{
		ID:        f.ID,
		Message:   f.Message,
		Rating:    f.Rating,
		CreatedAt: f.CreatedAt,
		Username:  models.UnknownUsername,
	}
	if f.PatientID != nil {
		out.PatientID = *f.PatientID
	}
	if f.Patient != nil && f.Patient.Username != "" {
		out.Username = f.Patient.Username
	}
	return out
}

// ToModel converts the row into the domain model.
func (p *Patient) ToModel() *models.Patient {
	return &models.Patient{ID: p.ID, Username: p.Username, Phone: p.Phone}
}
