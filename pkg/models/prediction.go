package models

import "time"

// Prediction labels returned by the relay.
const (
	LabelDepressed    = "Depressed"
	LabelNotDepressed = "Not Depressed"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

// StructuredReply is the rule-based part of a chatbot reply.
type StructuredReply struct {
	ImmediateResponse string `json:"immediate_response"`
	FollowUpQuestion  string `json:"follow_up_question"`
	SuggestedAction   string `json:"suggested_action"`
}

// Reply bundles the rule-based and generated replies.
type Reply struct {
	Structured StructuredReply `json:"structured"`
	Generated  string          `json:"generated,omitempty"`
}

// Prediction is the response of POST /predict.
type Prediction struct {
	Probabilities map[string]float64 `json:"probabilities"`
	Symptoms      map[string]int     `json:"symptoms"`
	Label         string             `json:"prediction"`
	Reply         *Reply             `json:"reply,omitempty"`
}

// IsDepressed reports whether the prediction label is the depressed class.
func (p *Prediction) IsDepressed() bool {
	return p.Label == LabelDepressed
}

// ConversationEntry is the body of POST /log_conversation and a row of the
// conversation log.
type ConversationEntry struct {
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	Symptoms   map[string]int `json:"symptoms"`
	UserID     string         `json:"user_id"`
	Message    string         `json:"message"`
	Prediction string         `json:"prediction"`
	ID         int64          `json:"id,omitempty"`
}

// GenerateReplyRequest is the body of POST /generate-arabic-response.
type GenerateReplyRequest struct {
	UserID     string `json:"user_id"`
	Message    string `json:"message"`
	Prediction string `json:"prediction"`
}

// GenerateReplyResponse is the response of POST /generate-arabic-response.
type GenerateReplyResponse struct {
	Response string `json:"response"`
}

// HealthStatus is the body returned by GET /health and GET /deep_health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Model      string            `json:"model,omitempty"`
	Timestamp  string            `json:"timestamp,omitempty"`
	Error      string            `json:"error,omitempty"`
	Components []ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth is the state of one dependency checked by deep health.
type ComponentHealth struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)
