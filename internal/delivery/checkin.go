package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/navigation"
)

// JobKindDailyCheckin is the durable job kind carrying one user's check-in.
const JobKindDailyCheckin = "daily_checkin"

const checkinPrompt = "Привет, %s! Как ты себя чувствуешь, как настроение? Оцени своё состояние."

var moodEmoji = map[models.Mood]string{
	models.MoodSad:     "😢",
	models.MoodNeutral: "😐",
	models.MoodHappy:   "😊",
}

var moodReplies = map[models.Mood]string{
	models.MoodSad:     "Мне жаль, что тебе сегодня непросто. 💙 Береги себя, отдохни и не забывай о питании. Я рядом, если захочешь задать вопрос.",
	models.MoodNeutral: "Спасибо, что поделился(ась)! 🙂 Пусть день станет чуть лучше: попробуй один из наших здоровых рецептов.",
	models.MoodHappy:   "Отлично! 😊 Рад, что у тебя хорошее настроение. Так держать!",
}

// MoodReply returns the canned answer to a check-in mood.
func MoodReply(m models.Mood) string {
	return moodReplies[m]
}

// CheckinRepo is the storage the check-in needs.
type CheckinRepo interface {
	ActiveUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error)
	AddMoodCheck(ctx context.Context, m *models.MoodCheck) error
}

type checkinPayload struct {
	UserID string `json:"user_id"`
}

// CheckIn schedules and delivers the daily mood prompt. The cron tick enqueues one
// durable job per active user; the job runner delivers it.
type CheckIn struct {
	repo     CheckinRepo
	sender   Sender
	location *time.Location
	now      func() time.Time
}

// NewCheckIn creates a CheckIn. loc decides which calendar day a check-in belongs to.
func NewCheckIn(repo CheckinRepo, sender Sender, loc *time.Location) *CheckIn {
	if loc == nil {
		loc = time.Local
	}
	return &CheckIn{repo: repo, sender: sender, location: loc, now: time.Now}
}

// Schedule enqueues today's check-in job for every active user. Jobs are keyed by
// user and local date, so running it twice on one day enqueues nothing new.
func (c *CheckIn) Schedule(ctx context.Context) (int, error) {
	now := c.now()
	users, err := c.repo.ActiveUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active users: %w", err)
	}
	day := now.In(c.location).Format("2006-01-02")
	enqueued := 0
	for _, u := range users {
		payload, err := json.Marshal(checkinPayload{UserID: u.ID})
		if err != nil {
			return enqueued, fmt.Errorf("failed to encode check-in payload: %w", err)
		}
		key := fmt.Sprintf("%s:%s:%s", JobKindDailyCheckin, u.ID, day)
		if _, err := c.repo.EnqueueJob(ctx, JobKindDailyCheckin, now, string(payload), key); err != nil {
			slog.Error("CheckIn.Schedule: enqueue failed", "user_id", u.ID, "error", err)
			continue
		}
		enqueued++
	}
	slog.Info("CheckIn.Schedule: check-ins scheduled", "users", len(users), "day", day)
	return enqueued, nil
}

// HandleJob delivers one user's check-in prompt. It is registered with the job runner.
func (c *CheckIn) HandleJob(ctx context.Context, payload string) error {
	var p checkinPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("invalid check-in payload: %w", err)
	}
	name := "друг"
	if u, err := c.repo.GetUser(ctx, p.UserID); err == nil && u.DisplayName != "" {
		name = u.DisplayName
	}
	buttons := make([]models.Button, 0, len(models.Moods))
	for _, m := range models.Moods {
		buttons = append(buttons, models.Button{Label: moodEmoji[m], Token: navigation.MoodToken(m)})
	}
	msg := models.Outbound{ChatID: p.UserID, Text: fmt.Sprintf(checkinPrompt, name), Buttons: buttons}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send check-in to %s: %w", p.UserID, err)
	}
	slog.Debug("CheckIn.HandleJob: prompt sent", "user_id", p.UserID)
	return nil
}

// RecordMood stores a check-in answer and returns the reply for it.
func (c *CheckIn) RecordMood(ctx context.Context, userID string, mood models.Mood) (string, error) {
	if !models.IsValidMood(mood) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidMood, mood)
	}
	if err := c.repo.AddMoodCheck(ctx, &models.MoodCheck{UserID: userID, Mood: mood, CreatedAt: c.now()}); err != nil {
		return "", fmt.Errorf("failed to store mood: %w", err)
	}
	return MoodReply(mood), nil
}
