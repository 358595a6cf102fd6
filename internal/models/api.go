package models

import (
	"errors"
	"strings"
)

// ErrMissingUserID is returned when an API request omits the user id.
var ErrMissingUserID = errors.New("missing required field: user_id")

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return APIResponse{Status: string(APIStatusRecorded)}
}

// SurveyCompleteRequest is posted by the survey form once a user submits it.
type SurveyCompleteRequest struct {
	UserID string `json:"user_id"`
}

// Validate checks that the request names a user.
func (r SurveyCompleteRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUserID
	}
	return nil
}
