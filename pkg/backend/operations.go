package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/pkg/models"
)

// Operation names a remote endpoint on the relay.
type Operation struct {
	Name   string
	Method string
	Path   string
}

// Relay operations.
var (
	OpPredict         = Operation{Name: "predict", Method: http.MethodPost, Path: "/predict"}
	OpLogConversation = Operation{Name: "log_conversation", Method: http.MethodPost, Path: "/log_conversation"}
	OpHealth          = Operation{Name: "health", Method: http.MethodGet, Path: "/health"}
	OpDeepHealth      = Operation{Name: "deep_health", Method: http.MethodGet, Path: "/deep_health"}
	OpGenerateReply   = Operation{Name: "generate_reply", Method: http.MethodPost, Path: "/generate-arabic-response"}
	OpStats           = Operation{Name: "stats", Method: http.MethodGet, Path: "/api/stats"}
)

// patientOp builds a per-patient operation under /api/patients/{patientID}.
func patientOp(name, method, patientID, suffix string) Operation {
	return Operation{
		Name:   name,
		Method: method,
		Path:   "/api/patients/" + url.PathEscape(patientID) + suffix,
	}
}

// Predict classifies a user message.
func (r *Resolver) Predict(ctx context.Context, text, userID string) (*models.Prediction, error) {
	var out models.Prediction
	if err := r.Call(ctx, OpPredict, models.PredictRequest{Text: text, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogConversation records a message and its prediction. It uses the shorter log
// timeout. Failures are logged and returned, callers are free to ignore them.
func (r *Resolver) LogConversation(ctx context.Context, entry models.ConversationEntry) error {
	err := r.call(ctx, OpLogConversation, entry, nil, r.logTimeout)
	if err != nil {
		log.Warn().Err(err).Str("user_id", entry.UserID).Msg("Failed to log conversation")
	}
	return err
}

// Health fetches the bound backend's shallow health status.
func (r *Resolver) Health(ctx context.Context) (*models.HealthStatus, error) {
	var out models.HealthStatus
	if err := r.Call(ctx, OpHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeepHealth fetches the bound backend's component health status.
func (r *Resolver) DeepHealth(ctx context.Context) (*models.HealthStatus, error) {
	var out models.HealthStatus
	if err := r.Call(ctx, OpDeepHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateReply asks the backend for a generated Arabic reply.
func (r *Resolver) GenerateReply(ctx context.Context, req models.GenerateReplyRequest) (string, error) {
	var out models.GenerateReplyResponse
	if err := r.Call(ctx, OpGenerateReply, req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// RelayStats fetches conversation counts by label and limiter statistics.
func (r *Resolver) RelayStats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := r.Call(ctx, OpStats, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MoodInsights fetches the patient's ranked activities and suggestions.
func (r *Resolver) MoodInsights(ctx context.Context, patientID string) (*models.MoodInsights, error) {
	var out models.MoodInsights
	if err := r.Call(ctx, patientOp("mood_insights", http.MethodGet, patientID, "/moods/insights"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoodStats fetches the patient's averages over the analysis window.
func (r *Resolver) MoodStats(ctx context.Context, patientID string) (*models.MoodStats, error) {
	var out models.MoodStats
	if err := r.Call(ctx, patientOp("mood_stats", http.MethodGet, patientID, "/moods/stats"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordMood saves a mood entry for the patient.
func (r *Resolver) RecordMood(ctx context.Context, patientID, mood string, activities []string) (*models.MoodEntry, error) {
	payload := struct {
		Mood       string   `json:"mood"`
		Activities []string `json:"activities"`
	}{Mood: mood, Activities: activities}

	var out models.MoodEntry
	if err := r.Call(ctx, patientOp("record_mood", http.MethodPost, patientID, "/moods"), payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecommendedActivities returns the names of the activities suggested for a mood scale.
func (r *Resolver) RecommendedActivities(ctx context.Context, scale int) ([]string, error) {
	op := Operation{
		Name:   "recommended_activities",
		Method: http.MethodGet,
		Path:   "/api/activities/recommended?scale=" + strconv.Itoa(scale),
	}
	var out []struct {
		Name string `json:"name"`
	}
	if err := r.Call(ctx, op, nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out))
	for _, a := range out {
		names = append(names, a.Name)
	}
	return names, nil
}
