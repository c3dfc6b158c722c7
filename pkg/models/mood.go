// Package models contains domain models for hearme.
package models

import "time"

// Mood scale bounds. 1 is the worst self-reported state, 5 the best.
const (
	MinMoodScale = 1
	MaxMoodScale = 5
)

// MoodEntry is a single self-reported mood, newest entries carry the latest state.
// Entries are immutable once created.
type MoodEntry struct {
	CreatedAt  time.Time     `json:"created_at"`
	ID         string        `json:"id"`
	PatientID  string        `json:"patient_id"`
	MoodName   string        `json:"mood"`
	Activities []ActivityTag `json:"activities"`
	Scale      int           `json:"scale"`
}

// ValidScale reports whether the entry's scale is inside the mood vocabulary.
func (e *MoodEntry) ValidScale() bool {
	return ValidScale(e.Scale)
}

// ActivityNames returns the names of the tagged activities in tag order.
func (e *MoodEntry) ActivityNames() []string {
	names := make([]string, 0, len(e.Activities))
	for _, a := range e.Activities {
		names = append(names, a.ActivityName)
	}
	return names
}

// ActivityTag associates a named daily activity with a mood entry.
// Tags have no lifecycle of their own and go away with their entry.
type ActivityTag struct {
	ID           string `json:"id"`
	MoodEntryID  string `json:"mood_entry_id"`
	ActivityName string `json:"activity_name"`
}

// ValidScale reports whether s is a mood scale value.
func ValidScale(s int) bool {
	return s >= MinMoodScale && s <= MaxMoodScale
}

// EffectivenessRecord is the derived per-activity outcome of a mood history.
// It is computed on demand and never persisted.
type EffectivenessRecord struct {
	ActivityName        string  `json:"activity_name"`
	PositiveImpactCount int     `json:"positive_impact_count"`
	TotalOccurrences    int     `json:"total_occurrences"`
	EffectivenessScore  float64 `json:"effectiveness_score"`
}

// ActivityImpact aggregates the mood scales recorded alongside one activity.
type ActivityImpact struct {
	Count      int     `json:"count"`
	TotalScale int     `json:"total_scale"`
	AvgScale   float64 `json:"avg_scale"`
}

// MoodStats summarizes a window of mood history.
type MoodStats struct {
	ActivityImpact   map[string]ActivityImpact `json:"activity_impact"`
	AverageMoodScale float64                   `json:"average_mood_scale"`
	TotalEntries     int                       `json:"total_entries"`
}

// MoodInsights is the body of GET /api/patients/{patientID}/moods/insights:
// the patient's ranked activities and the catalog suggestions for their latest mood.
type MoodInsights struct {
	Latest      *MoodEntry            `json:"latest"`
	PatientID   string                `json:"patient_id"`
	Effective   []EffectivenessRecord `json:"effective"`
	Recommended []string              `json:"recommended"`
	Window      int                   `json:"window"`
}
