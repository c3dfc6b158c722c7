package models

import "time"

// UnknownUsername is shown for feedback whose patient has no profile.
const UnknownUsername = "Unknown User"

// Feedback is an app review left by a patient.
type Feedback struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Username  string    `json:"name"`
	Message   string    `json:"text"`
	Rating    int       `json:"rating"`
}

// Patient is the profile row that feedback and mood entries hang off.
type Patient struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Phone    string `json:"phone,omitempty"`
}
