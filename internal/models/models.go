// Package models defines the core data structures for the PYOOTS assistant.
//
// It includes users, sessions, interactions, ratings and the scheduled-delivery records
// shared between the bot, the store and the delivery engines.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Validation constants for input validation
const (
	// MinRatingValue is the lowest rating a user can give a recipe.
	MinRatingValue = 1
	// MaxRatingValue is the highest rating a user can give a recipe.
	MaxRatingValue = 5
	// MaxBroadcastLength bounds the admin broadcast text.
	MaxBroadcastLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message text cannot be empty")
	ErrMessageTooLong  = errors.New("message text exceeds maximum length")
	ErrBroadcastInPast = errors.New("broadcast time must be in the future")
	ErrInvalidMood     = errors.New("invalid mood value")
)

// User is a chat platform user known to the assistant.
type User struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	IsActive         bool      `json:"is_active"`
	InteractionCount int       `json:"interaction_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// SessionSource records why a session was opened.
type SessionSource string

const (
	// SessionSourceStart marks the first session a user ever had.
	SessionSourceStart SessionSource = "start"
	// SessionSourceContinuation marks a session opened after an earlier one ended.
	SessionSourceContinuation SessionSource = "continuation"
)

// Session is a contiguous burst of activity from one user.
type Session struct {
	ID              int64         `json:"id"`
	UserID          string        `json:"user_id"`
	StartedAt       time.Time     `json:"started_at"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Completed       bool          `json:"completed"`
	DurationSeconds int64         `json:"duration_seconds"`
	Source          SessionSource `json:"source"`
}

// ActionType classifies a logged user action.
type ActionType string

const (
	ActionButtonClick   ActionType = "button_click"
	ActionCommand       ActionType = "command"
	ActionMessage       ActionType = "message"
	ActionProductSearch ActionType = "product_search"
	ActionGPTQuestion   ActionType = "gpt_question"
	ActionRecipeView    ActionType = "recipe_view"
	ActionRateButton    ActionType = "click_rate_button"
	ActionSubmitRating  ActionType = "submit_rating"
	ActionHealthCheck   ActionType = "health_check"
)

// Interaction is one append-only audit record of a user action.
type Interaction struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	SessionID int64      `json:"session_id"`
	Action    ActionType `json:"action"`
	Payload   string     `json:"payload"`
	Success   bool       `json:"success"`
	LatencyMS *int64     `json:"latency_ms,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Rating is a user's score for a catalog recipe, referenced by value.
type Rating struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	RecipeType string    `json:"recipe_type"`
	RecipeName string    `json:"recipe_name"`
	Value      int       `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the rating value range.
func (r Rating) Validate() error {
	if r.Value < MinRatingValue || r.Value > MaxRatingValue {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, r.Value)
	}
	return nil
}

// BroadcastMessage is an admin message queued for delivery to all active users.
type BroadcastMessage struct {
	ID          int64      `json:"id"`
	AdminID     string     `json:"admin_id"`
	Text        string     `json:"text"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Sent        bool       `json:"sent"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// Validate checks a broadcast before it is stored. now is the creation time.
func (b BroadcastMessage) Validate(now time.Time) error {
	if b.Text == "" {
		return ErrEmptyMessage
	}
	if len([]rune(b.Text)) > MaxBroadcastLength {
		return ErrMessageTooLong
	}
	if !b.ScheduledAt.After(now) {
		return ErrBroadcastInPast
	}
	return nil
}

// SurveyStatus tracks whether a user filled in the feedback survey.
type SurveyStatus struct {
	UserID         string     `json:"user_id"`
	Completed      bool       `json:"completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
}

// NeedsReminder reports whether a reminder is due given the cooldown cutoff.
// A nil status means the user was never reminded.
func (s *SurveyStatus) NeedsReminder(cutoff time.Time) bool {
	if s == nil {
		return true
	}
	if s.Completed {
		return false
	}
	return s.LastReminderAt == nil || s.LastReminderAt.Before(cutoff)
}

// Mood is the answer to the daily check-in.
type Mood string

const (
	MoodSad     Mood = "sad"
	MoodNeutral Mood = "neutral"
	MoodHappy   Mood = "happy"
)

// Moods lists the check-in answers in display order.
var Moods = []Mood{MoodSad, MoodNeutral, MoodHappy}

// IsValidMood checks if the given mood is supported.
func IsValidMood(m Mood) bool {
	switch m {
	case MoodSad, MoodNeutral, MoodHappy:
		return true
	default:
		return false
	}
}

// MoodCheck is one persisted check-in answer.
type MoodCheck struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Mood      Mood      `json:"mood"`
	CreatedAt time.Time `json:"created_at"`
}

// RecipeStat aggregates ratings per recipe type.
type RecipeStat struct {
	RecipeType string  `json:"recipe_type"`
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
}

// MoodStats aggregates check-in answers over a window.
type MoodStats struct {
	Counts      map[Mood]int `json:"counts"`
	ActiveUsers int          `json:"active_users"`
}

// UserStats summarizes the user base.
type UserStats struct {
	Total      int `json:"total"`
	ActiveWeek int `json:"active_week"`
	NewWeek    int `json:"new_week"`
}
