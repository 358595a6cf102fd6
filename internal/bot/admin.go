package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// IsAdmin reports whether userID may run admin commands.
func (b *Bot) IsAdmin(userID string) bool {
	return b.admins[userID]
}

func (b *Bot) requireAdmin(userID string, r *reply) bool {
	if b.IsAdmin(userID) {
		return true
	}
	slog.Warn("Bot.requireAdmin: admin command refused", "user_id", userID)
	r.success = false
	r.text(userID, fmt.Sprintf(textNoAccess, userID))
	return false
}

func (b *Bot) broadcastText(conv *Conversation, evt models.Event, r *reply) {
	text := strings.TrimSpace(evt.Payload)
	switch {
	case text == "":
		r.success = false
		r.text(evt.UserID, textBroadcastEmpty)
		return
	case len([]rune(text)) > models.MaxBroadcastLength:
		r.success = false
		r.text(evt.UserID, textBroadcastTooLong)
		return
	}
	conv.draft = text
	conv.Mode = ModeComposeBroadcastTime
	r.text(evt.UserID, textBroadcastEnterTime)
}

// broadcastTime parses the delivery time in the bot's timezone and stores the
// broadcast. An invalid or past time keeps the admin in the time step.
func (b *Bot) broadcastTime(ctx context.Context, conv *Conversation, evt models.Event, r *reply) {
	scheduled, err := time.ParseInLocation(broadcastTimeLayout, strings.TrimSpace(evt.Payload), b.location)
	if err != nil {
		r.success = false
		r.text(evt.UserID, textBroadcastBadTime)
		return
	}

	now := b.now()
	msg := &models.BroadcastMessage{
		AdminID:     evt.UserID,
		Text:        conv.draft,
		ScheduledAt: scheduled,
		CreatedAt:   now,
	}
	if err := msg.Validate(now); err != nil {
		r.success = false
		if errors.Is(err, models.ErrBroadcastInPast) {
			r.text(evt.UserID, textBroadcastPast)
			return
		}
		// The draft itself is unusable; start over.
		conv.Mode = ModeComposeBroadcastText
		r.text(evt.UserID, textBroadcastEmpty)
		return
	}

	if err := b.Store.CreateBroadcast(ctx, msg); err != nil {
		slog.Error("Bot.broadcastTime: failed to create broadcast", "admin_id", evt.UserID, "error", err)
		conv.reset()
		r.success = false
		r.text(evt.UserID, textBroadcastFailed, startButton)
		return
	}
	slog.Info("Bot.broadcastTime: broadcast scheduled", "admin_id", evt.UserID, "broadcast_id", msg.ID, "scheduled_at", scheduled)
	conv.reset()
	r.text(evt.UserID, fmt.Sprintf(textBroadcastCreated, msg.Text, scheduled.Format(broadcastTimeLayout)), startButton)
}

func (b *Bot) stats(ctx context.Context, userID, cmd string, r *reply) {
	var (
		text string
		err  error
	)
	now := b.now()
	switch cmd {
	case CmdStatsRecipes:
		var stats []models.RecipeStat
		if stats, err = b.Store.RecipeStats(ctx); err == nil {
			text = FormatRecipeStats(stats)
		}
	case CmdStatsHealth:
		var stats models.MoodStats
		if stats, err = b.Store.MoodStats(ctx, now.AddDate(0, 0, -30)); err == nil {
			text = FormatMoodStats(stats)
		}
	case CmdStatsUsers:
		var stats models.UserStats
		if stats, err = b.Store.UserStats(ctx, now); err == nil {
			text = FormatUserStats(stats)
		}
	}
	if err != nil {
		slog.Error("Bot.stats: failed to load statistics", "command", cmd, "error", err)
		r.success = false
		r.text(userID, textStatsFailed)
		return
	}
	r.text(userID, text)
}

// FormatRecipeStats renders the per-recipe-type rating summary.
func FormatRecipeStats(stats []models.RecipeStat) string {
	if len(stats) == 0 {
		return "Пока нет оценок рецептов."
	}
	var sb strings.Builder
	sb.WriteString("📊 Статистика рецептов:\n")
	for _, s := range stats {
		name := recipeTypeNames[s.RecipeType]
		if name == "" {
			name = s.RecipeType
		}
		fmt.Fprintf(&sb, "\n%s:\n⭐ Средняя оценка: %.1f\n📝 Всего оценок: %d\n", name, s.Average, s.Count)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatMoodStats renders the 30-day mood summary.
func FormatMoodStats(stats models.MoodStats) string {
	total := 0
	for _, n := range stats.Counts {
		total += n
	}
	var sb strings.Builder
	sb.WriteString("🎭 Статистика настроения (за 30 дней):\n\n")
	for _, m := range []models.Mood{models.MoodHappy, models.MoodNeutral, models.MoodSad} {
		n := stats.Counts[m]
		if n == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s:\nКоличество: %d (%.1f%%)\n\n", moodNames[m], n, float64(n)*100/float64(total))
	}
	fmt.Fprintf(&sb, "👥 Активных пользователей: %d\n📝 Всего ответов: %d", stats.ActiveUsers, total)
	return sb.String()
}

// FormatUserStats renders the user base summary.
func FormatUserStats(stats models.UserStats) string {
	return fmt.Sprintf("👥 Статистика пользователей:\n\nВсего пользователей: %d\nАктивных за неделю: %d\nНовых за неделю: %d",
		stats.Total, stats.ActiveWeek, stats.NewWeek)
}
