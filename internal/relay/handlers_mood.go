package relay

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/internal/db"
	hearmedb "github.com/thebtf/hearme/internal/db/gorm"
	"github.com/thebtf/hearme/pkg/models"
)

// Handler configuration constants
const (
	// DefaultHistoryLimit is the default number of mood entries to return.
	DefaultHistoryLimit = 30

	// DefaultRecentLimit is the default number of entries for the cross-patient feed.
	DefaultRecentLimit = 50
)

// RecordMoodRequest is the body of POST /api/patients/{patientID}/moods.
type RecordMoodRequest struct {
	Mood       string   `json:"mood"`
	Activities []string `json:"activities"`
}

// SubmitFeedbackRequest is the body of POST /api/patients/{patientID}/feedback.
type SubmitFeedbackRequest struct {
	Text   string `json:"text"`
	Rating int    `json:"rating"`
}

// UpsertPatientRequest is the body of PUT /api/patients/{patientID}.
type UpsertPatientRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
}

// writeStoreError maps store sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, hearmedb.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, hearmedb.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, hearmedb.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Str("op", op).Msg("Store operation failed")
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// moods returns the mood store, answering 503 when none is configured.
func (s *Service) moods(w http.ResponseWriter) (db.MoodStore, bool) {
	deps, _ := s.components()
	if deps.Moods == nil {
		writeError(w, http.StatusServiceUnavailable, "mood store not configured")
		return nil, false
	}
	return deps.Moods, true
}

// handleListMoods returns the mood vocabulary.
func (s *Service) handleListMoods(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	writeJSON(w, deps.Catalog.Moods)
}

// handleListActivities returns the activity catalog.
func (s *Service) handleListActivities(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	writeJSON(w, deps.Catalog.Activities)
}

// handleRecommendedActivities returns the activities suggested for ?scale=N.
func (s *Service) handleRecommendedActivities(w http.ResponseWriter, r *http.Request) {
	scale, err := strconv.Atoi(r.URL.Query().Get("scale"))
	if err != nil || !models.ValidScale(scale) {
		writeError(w, http.StatusBadRequest, "scale must be an integer between 1 and 5")
		return
	}
	deps, _ := s.components()
	writeJSON(w, deps.Catalog.Recommended(scale))
}

// handleRecentMoods returns the newest entries across patients.
func (s *Service) handleRecentMoods(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	limit := hearmedb.ParseLimitParamWithMax(r, DefaultRecentLimit, 0)
	entries, err := store.ListRecent(r.Context(), limit)
	if err != nil {
		writeStoreError(w, "list recent moods", err)
		return
	}
	if entries == nil {
		entries = []*models.MoodEntry{}
	}
	writeJSON(w, entries)
}

// handleRecordMood saves a mood with its activities.
func (s *Service) handleRecordMood(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	var req RecordMoodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		writeError(w, http.StatusBadRequest, "mood is required")
		return
	}

	entry, err := store.RecordMood(r.Context(), chi.URLParam(r, "patientID"), req.Mood, req.Activities)
	if err != nil {
		writeStoreError(w, "record mood", err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, entry)
}

// handleMoodHistory returns the patient's entries newest first.
func (s *Service) handleMoodHistory(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	limit := hearmedb.ParseLimitParamWithMax(r, DefaultHistoryLimit, 0)
	entries, err := store.MoodHistory(r.Context(), chi.URLParam(r, "patientID"), limit)
	if err != nil {
		writeStoreError(w, "mood history", err)
		return
	}
	if entries == nil {
		entries = []*models.MoodEntry{}
	}
	writeJSON(w, entries)
}

// handleLatestMood returns the patient's newest entry or 404.
func (s *Service) handleLatestMood(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	entry, err := store.LastMoodEntry(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeStoreError(w, "latest mood", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "no mood entries")
		return
	}
	writeJSON(w, entry)
}

// handleDeleteMood removes one of the patient's entries and its tags.
func (s *Service) handleDeleteMood(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	if err := store.DeleteMoodEntry(r.Context(), chi.URLParam(r, "patientID"), chi.URLParam(r, "entryID")); err != nil {
		writeStoreError(w, "delete mood", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoodStats returns averages over the analysis window.
func (s *Service) handleMoodStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.moods(w); !ok {
		return
	}
	_, analyzer := s.components()
	stats, err := analyzer.PatientStats(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeStoreError(w, "mood stats", err)
		return
	}
	writeJSON(w, stats)
}

// handleMoodInsights ranks the patient's activities by effectiveness and lists
// the catalog suggestions for the latest mood.
func (s *Service) handleMoodInsights(w http.ResponseWriter, r *http.Request) {
	store, ok := s.moods(w)
	if !ok {
		return
	}
	deps, analyzer := s.components()
	patientID := chi.URLParam(r, "patientID")

	records, err := analyzer.AnalyzePatient(r.Context(), patientID)
	if err != nil {
		writeStoreError(w, "mood insights", err)
		return
	}
	latest, err := store.LastMoodEntry(r.Context(), patientID)
	if err != nil {
		writeStoreError(w, "latest mood", err)
		return
	}

	resp := models.MoodInsights{
		PatientID:   patientID,
		Window:      analyzer.GetConfig().Window,
		Effective:   records,
		Latest:      latest,
		Recommended: []string{},
	}
	if latest != nil {
		for _, a := range deps.Catalog.Recommended(latest.Scale) {
			resp.Recommended = append(resp.Recommended, a.Name)
		}
	}
	writeJSON(w, resp)
}

// handleUpsertPatient creates or updates the patient profile.
func (s *Service) handleUpsertPatient(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	if deps.Patients == nil {
		writeError(w, http.StatusServiceUnavailable, "patient store not configured")
		return
	}
	var req UpsertPatientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	patient, err := deps.Patients.UpsertPatient(r.Context(), chi.URLParam(r, "patientID"), req.Username, req.Phone)
	if err != nil {
		writeStoreError(w, "upsert patient", err)
		return
	}
	writeJSON(w, patient)
}

// handleGetPatient returns the patient profile or 404.
func (s *Service) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	if deps.Patients == nil {
		writeError(w, http.StatusServiceUnavailable, "patient store not configured")
		return
	}
	patient, err := deps.Patients.GetPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeStoreError(w, "get patient", err)
		return
	}
	if patient == nil {
		writeError(w, http.StatusNotFound, "patient not found")
		return
	}
	writeJSON(w, patient)
}

// handleSubmitFeedback stores a review from the patient.
func (s *Service) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	if deps.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback store not configured")
		return
	}
	var req SubmitFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fb, err := deps.Feedback.SubmitFeedback(r.Context(), chi.URLParam(r, "patientID"), req.Rating, req.Text)
	if err != nil {
		writeStoreError(w, "submit feedback", err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, fb)
}

// handleListFeedback returns the newest reviews.
func (s *Service) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	if deps.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback store not configured")
		return
	}
	limit := hearmedb.ParseLimitParamWithMax(r, hearmedb.DefaultFeedbackLimit, 0)
	items, err := deps.Feedback.ListFeedback(r.Context(), limit)
	if err != nil {
		writeStoreError(w, "list feedback", err)
		return
	}
	if items == nil {
		items = []*models.Feedback{}
	}
	writeJSON(w, items)
}

// handleDeleteFeedback removes a review.
func (s *Service) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	if deps.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback store not configured")
		return
	}
	if err := deps.Feedback.DeleteFeedback(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete feedback", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
