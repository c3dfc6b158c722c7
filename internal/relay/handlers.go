package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/internal/interview"
	"github.com/thebtf/hearme/internal/privacy"
	"github.com/thebtf/hearme/internal/symptoms"
	"github.com/thebtf/hearme/pkg/models"
)

const (
	// anonymousUser is recorded when a request has no user id.
	anonymousUser = "anonymous"

	// unknownPrediction is used by generate-arabic-response when no label is sent.
	unknownPrediction = "غير محدد"

	// deepHealthProbe is the phrase the classifier is exercised with.
	deepHealthProbe = "اختبار النظام"

	// deepHealthTimeout bounds each deep health check.
	deepHealthTimeout = 3 * time.Second
)

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

// writeJSONStatus writes a JSON response with the given status.
func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// handleHealth answers 200 once the service can serve predictions, 503 before.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		status := "initializing"
		msg := ""
		if err := s.GetInitError(); err != nil {
			status = models.StatusUnhealthy
			msg = err.Error()
		}
		writeJSONStatus(w, http.StatusServiceUnavailable, models.HealthStatus{
			Status:    status,
			Error:     msg,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}

	deps, _ := s.components()
	writeJSON(w, models.HealthStatus{
		Status:    models.StatusHealthy,
		Model:     deps.Predictor.ModelName(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// handleVersion returns the relay version and uptime.
func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// requireReady is middleware that returns 503 if service isn't ready.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				writeError(w, http.StatusInternalServerError, "service initialization failed: "+err.Error())
				return
			}
			writeError(w, http.StatusServiceUnavailable, "service initializing")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleDeepHealth exercises the classifier and pings each store.
// The mood database is optional; its absence only degrades the result.
func (s *Service) handleDeepHealth(w http.ResponseWriter, r *http.Request) {
	deps, _ := s.components()
	result := models.HealthStatus{
		Status:    models.StatusHealthy,
		Model:     deps.Predictor.ModelName(),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	add := func(c models.ComponentHealth) {
		if c.Status == models.StatusUnhealthy {
			result.Status = models.StatusUnhealthy
			if result.Error == "" {
				result.Error = c.Name + ": " + c.Message
			}
		}
		result.Components = append(result.Components, c)
	}
	check := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), deepHealthTimeout)
		defer cancel()

		c := models.ComponentHealth{Name: name, Status: models.StatusHealthy}
		if err := fn(ctx); err != nil {
			c.Status = models.StatusUnhealthy
			c.Message = err.Error()
		}
		add(c)
	}

	check("model", func(ctx context.Context) error {
		_, err := deps.Predictor.Predict(ctx, deepHealthProbe)
		return err
	})
	check("storage", deps.Conversations.Ping)
	switch database := deps.Database.(type) {
	case nil:
		add(models.ComponentHealth{Name: "database", Status: models.StatusDegraded, Message: "not configured"})
	case db.HealthReporter:
		ctx, cancel := context.WithTimeout(r.Context(), deepHealthTimeout)
		add(databaseHealth(database.HealthCheck(ctx)))
		cancel()
	default:
		check("database", database.Ping)
	}

	status := http.StatusOK
	if result.Status == models.StatusUnhealthy {
		status = http.StatusInternalServerError
	}
	writeJSONStatus(w, status, result)
}

// databaseHealth reports latency and pool pressure. Only an unreachable
// database fails the deep health check; a slow one is degraded.
func databaseHealth(info *db.HealthInfo) models.ComponentHealth {
	c := models.ComponentHealth{Name: "database", Status: models.StatusUnhealthy, Message: "no health report"}
	if info == nil {
		return c
	}
	c.Status = info.Status
	c.LatencyMs = float64(info.QueryLatency.Microseconds()) / 1000
	switch info.Status {
	case models.StatusUnhealthy:
		c.Message = info.Error
	case models.StatusDegraded:
		c.Message = info.Warning
	default:
		c.Message = ""
	}
	return c
}

// handlePredict classifies a message, attaches the generated reply and
// appends the exchange to the conversation log.
func (s *Service) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.PredictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Empty input text")
		return
	}
	if req.UserID == "" {
		req.UserID = anonymousUser
	}

	deps, _ := s.components()
	pred, err := deps.Predictor.Predict(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, symptoms.ErrEmptyText) {
			writeError(w, http.StatusBadRequest, "Empty input text")
			return
		}
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Prediction failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if pred.Reply == nil {
		pred.Reply = &models.Reply{}
	}
	pred.Reply.Generated = s.generate(r.Context(), deps, req.UserID, req.Text, pred.Label)

	if _, err := deps.Conversations.Append(r.Context(), &models.ConversationEntry{
		UserID:     req.UserID,
		Message:    privacy.Redact(req.Text),
		Prediction: pred.Label,
		Symptoms:   pred.Symptoms,
	}); err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("Failed to append conversation")
	}

	writeJSON(w, pred)
}

// generate returns the generated reply. Generator failures still yield its
// fallback text; with no generator the fallback is used directly.
func (s *Service) generate(ctx context.Context, deps Dependencies, userID, message, prediction string) string {
	if deps.Generator == nil {
		return interview.FallbackReply
	}
	reply, err := deps.Generator.Generate(ctx, userID, message, prediction)
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, interview.ErrNoModel) {
			ev = log.Debug()
		}
		ev.Err(err).Str("user_id", userID).Msg("Using fallback reply")
	}
	if reply == "" {
		reply = interview.FallbackReply
	}
	return reply
}

// handleLogConversation appends a client-reported exchange to the log.
func (s *Service) handleLogConversation(w http.ResponseWriter, r *http.Request) {
	var entry models.ConversationEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(entry.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	entry.Message = privacy.Redact(entry.Message)
	entry.ID = 0
	entry.CreatedAt = time.Time{}

	deps, _ := s.components()
	id, err := deps.Conversations.Append(r.Context(), &entry)
	if err != nil {
		log.Error().Err(err).Str("user_id", entry.UserID).Msg("Failed to log conversation")
		writeError(w, http.StatusInternalServerError, "failed to log conversation")
		return
	}
	writeJSON(w, map[string]any{"status": "logged", "id": id})
}

// handleGenerateReply returns a generated interview reply.
func (s *Service) handleGenerateReply(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	if req.Prediction == "" {
		req.Prediction = unknownPrediction
	}

	deps, _ := s.components()
	writeJSON(w, models.GenerateReplyResponse{
		Response: s.generate(r.Context(), deps, req.UserID, req.Message, req.Prediction),
	})
}

// handleStats reports conversation counts by label and limiter statistics.
func (s *Service) handleStats(limits *Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps, _ := s.components()
		counts, err := deps.Conversations.CountByPrediction(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.initMu.RLock()
		maint := s.maintenance
		s.initMu.RUnlock()
		var retention map[string]any
		if maint != nil {
			retention = maint.Stats()
		}

		writeJSON(w, map[string]any{
			"maintenance":    retention,
			"conversations":  counts,
			"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
			"rate_limits": map[string]any{
				"predict": limits.Predict.Stats(),
				"global":  limits.Global.Stats(),
			},
		})
	}
}
