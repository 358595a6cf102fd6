// Package bot is the conversation layer: it turns one inbound event into replies,
// keeping each user's mode and navigation context and recording every action.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/navigation"
	"github.com/BTreeMap/pyoots/internal/session"
)

// DefaultAnswerTimeout bounds one question-answering call.
const DefaultAnswerTimeout = 60 * time.Second

// DefaultConversationTTL is how long an idle user's chat state is kept.
const DefaultConversationTTL = 24 * time.Hour

// Store is the storage the bot needs directly.
type Store interface {
	UpsertUser(ctx context.Context, id, displayName string, now time.Time) (*models.User, error)
	CreateBroadcast(ctx context.Context, b *models.BroadcastMessage) error
	RecipeStats(ctx context.Context) ([]models.RecipeStat, error)
	MoodStats(ctx context.Context, since time.Time) (models.MoodStats, error)
	UserStats(ctx context.Context, now time.Time) (models.UserStats, error)
}

// Answerer answers free-text health questions.
type Answerer interface {
	AnswerHealthQuestion(ctx context.Context, question string) (string, error)
}

// ProductChecker classifies product names.
type ProductChecker interface {
	Check(product string) catalog.Verdict
}

// MoodRecorder stores daily check-in answers.
type MoodRecorder interface {
	RecordMood(ctx context.Context, userID string, mood models.Mood) (string, error)
}

// Deps are the collaborators every Bot needs.
type Deps struct {
	Store     Store
	Navigator *navigation.Navigator
	Tracker   *session.Tracker
	Log       *session.InteractionLog
	Products  ProductChecker
	Moods     MoodRecorder
}

// Opts holds optional bot settings.
type Opts struct {
	Admins          []string
	Location        *time.Location
	Answerer        Answerer
	AnswerTimeout   time.Duration
	SpecialistChat  string
	ConversationTTL time.Duration
}

// Option configures a Bot.
type Option func(*Opts)

// WithAdmins sets the user ids allowed to run admin commands.
func WithAdmins(ids []string) Option {
	return func(o *Opts) { o.Admins = ids }
}

// WithLocation sets the timezone broadcast times are entered in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithAnswerer enables question answering.
func WithAnswerer(a Answerer) Option {
	return func(o *Opts) { o.Answerer = a }
}

// WithAnswerTimeout bounds one question-answering call.
func WithAnswerTimeout(d time.Duration) Option {
	return func(o *Opts) { o.AnswerTimeout = d }
}

// WithSpecialistChat forwards unresolved product questions to chatID.
func WithSpecialistChat(chatID string) Option {
	return func(o *Opts) { o.SpecialistChat = chatID }
}

// WithConversationTTL sets how long an idle user's chat state is kept in memory.
func WithConversationTTL(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.ConversationTTL = d
		}
	}
}

// Bot handles inbound events. Handle is called from one event loop, so a user's
// events are processed in order.
type Bot struct {
	Deps
	admins         map[string]bool
	location       *time.Location
	answerer       Answerer
	answerTimeout  time.Duration
	specialistChat string
	convTTL        time.Duration
	convs          *conversations
	now            func() time.Time
}

// New creates a Bot.
func New(deps Deps, opts ...Option) *Bot {
	cfg := Opts{Location: time.Local, AnswerTimeout: DefaultAnswerTimeout, ConversationTTL: DefaultConversationTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	admins := make(map[string]bool, len(cfg.Admins))
	for _, id := range cfg.Admins {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = true
		}
	}
	return &Bot{
		Deps:           deps,
		admins:         admins,
		location:       cfg.Location,
		answerer:       cfg.Answerer,
		answerTimeout:  cfg.AnswerTimeout,
		specialistChat: cfg.SpecialistChat,
		convTTL:        cfg.ConversationTTL,
		convs:          newConversations(),
		now:            time.Now,
	}
}

// Conversation returns the user's current conversation state.
func (b *Bot) Conversation(userID string) Conversation {
	return b.convs.peek(userID)
}

// EvictIdle forgets the chat state of users idle for longer than the conversation TTL
// and returns how many were dropped.
func (b *Bot) EvictIdle() int {
	return b.convs.evictBefore(b.now().Add(-b.convTTL))
}

// reply accumulates the outcome of routing one event.
type reply struct {
	out     []models.Outbound
	action  models.ActionType
	success bool
}

func (r *reply) text(chatID, text string, buttons ...models.Button) {
	r.out = append(r.out, models.Outbound{ChatID: chatID, Text: text, Buttons: buttons})
}

// Handle runs the per-event pipeline: upsert the user, route the event, record the
// interaction (which touches the session) and close the session on /cancel.
func (b *Bot) Handle(ctx context.Context, evt models.Event) []models.Outbound {
	started := b.now()
	at := evt.Time
	if at.IsZero() {
		at = started
	}
	if _, err := b.Store.UpsertUser(ctx, evt.UserID, evt.DisplayName, at); err != nil {
		slog.Error("Bot.Handle: failed to upsert user", "user_id", evt.UserID, "error", err)
	}

	conv := b.convs.get(evt.UserID, started)
	r := reply{success: true}
	switch evt.Kind {
	case models.EventCommand:
		b.handleCommand(ctx, conv, evt, &r)
	case models.EventButton:
		b.handleButton(ctx, conv, evt, &r)
	default:
		b.handleText(ctx, conv, evt, &r)
	}

	b.Log.Record(ctx, session.Entry{
		UserID:  evt.UserID,
		Action:  r.action,
		Payload: evt.Payload,
		Success: r.success,
		Latency: b.now().Sub(started),
		At:      at,
	})
	if evt.Kind == models.EventCommand && evt.Payload == CmdCancel {
		if err := b.Tracker.Cancel(ctx, evt.UserID); err != nil {
			slog.Error("Bot.Handle: failed to close session on cancel", "user_id", evt.UserID, "error", err)
		}
		b.convs.drop(evt.UserID)
	}
	slog.Debug("Bot.Handle: event handled", "user_id", evt.UserID, "kind", evt.Kind, "mode", conv.Mode, "replies", len(r.out))
	return r.out
}

func (b *Bot) handleCommand(ctx context.Context, conv *Conversation, evt models.Event, r *reply) {
	r.action = models.ActionCommand
	switch evt.Payload {
	case CmdStart:
		conv.reset()
		b.screen(evt.UserID, navigation.RootScreen(), r)
	case CmdCancel:
		wasComposing := conv.composing()
		conv.reset()
		if wasComposing {
			r.text(evt.UserID, textBroadcastCancelled, startButton)
			return
		}
		r.text(evt.UserID, textCancelled, startButton)
	case CmdAdmin, CmdStatsHelp:
		if b.requireAdmin(evt.UserID, r) {
			r.text(evt.UserID, textAdminHelp)
		}
	case CmdBroadcast:
		if b.requireAdmin(evt.UserID, r) {
			conv.Mode = ModeComposeBroadcastText
			conv.draft = ""
			r.text(evt.UserID, textBroadcastEnterText)
		}
	case CmdStatsRecipes, CmdStatsHealth, CmdStatsUsers:
		if b.requireAdmin(evt.UserID, r) {
			b.stats(ctx, evt.UserID, evt.Payload, r)
		}
	default:
		r.success = false
		r.text(evt.UserID, textUnknownCmd, startButton)
	}
}

func (b *Bot) handleButton(ctx context.Context, conv *Conversation, evt models.Event, r *reply) {
	tok := navigation.ParseToken(evt.Payload)
	r.action = models.ActionButtonClick
	switch tok.Kind {
	case navigation.KindAskQuestion:
		conv.Mode = ModeAwaitingQuestion
		r.text(evt.UserID, textAskQuestion, cancelButton)
		return
	case navigation.KindCheckProduct:
		conv.Mode = ModeAwaitingProduct
		r.text(evt.UserID, textCheckProduct, cancelButton)
		return
	case navigation.KindMood:
		conv.Mode = ModeMenu
		b.recordMood(ctx, evt.UserID, models.Mood(tok.Payload), r)
		return
	}

	conv.Mode = ModeMenu
	switch tok.Kind {
	case navigation.KindItem:
		r.action = models.ActionRecipeView
	case navigation.KindRate:
		r.action = models.ActionRateButton
	case navigation.KindRating:
		r.action = models.ActionSubmitRating
	}
	res := b.Navigator.Apply(ctx, evt.UserID, conv.Nav, tok)
	conv.Nav = res.Context
	switch res.Screen.State {
	case navigation.StateExpired, navigation.StateNotFound, navigation.StateRatingFailed:
		r.success = false
	}
	b.screen(evt.UserID, res.Screen, r)
}

func (b *Bot) handleText(ctx context.Context, conv *Conversation, evt models.Event, r *reply) {
	r.action = models.ActionMessage
	switch conv.Mode {
	case ModeComposeBroadcastText:
		b.broadcastText(conv, evt, r)
	case ModeComposeBroadcastTime:
		b.broadcastTime(ctx, conv, evt, r)
	case ModeAwaitingProduct:
		conv.Mode = ModeMenu
		b.checkProduct(evt, r)
	default:
		conv.Mode = ModeMenu
		b.answer(ctx, evt, r)
	}
}

func (b *Bot) screen(chatID string, s navigation.Screen, r *reply) {
	r.text(chatID, s.Text, s.Buttons...)
}

func (b *Bot) recordMood(ctx context.Context, userID string, mood models.Mood, r *reply) {
	r.action = models.ActionHealthCheck
	text, err := b.Moods.RecordMood(ctx, userID, mood)
	if err != nil {
		slog.Error("Bot.recordMood: failed to record mood", "user_id", userID, "mood", mood, "error", err)
		r.success = false
		r.text(userID, textMoodFailed, menuButton)
		return
	}
	r.text(userID, text, menuButton)
}

func (b *Bot) checkProduct(evt models.Event, r *reply) {
	r.action = models.ActionProductSearch
	verdict := b.Products.Check(evt.Payload)
	slog.Debug("Bot.checkProduct: product checked", "user_id", evt.UserID, "verdict", verdict)
	r.text(evt.UserID, verdict.Reply(), menuButton)

	if b.specialistChat != "" && (verdict == catalog.VerdictUnknown || verdict == catalog.VerdictConflicting) {
		name := evt.DisplayName
		if name == "" {
			name = "-"
		}
		r.text(b.specialistChat, fmt.Sprintf(textSpecialist, name, evt.UserID, evt.Payload))
	}
}

func (b *Bot) answer(ctx context.Context, evt models.Event, r *reply) {
	r.action = models.ActionGPTQuestion
	if b.answerer == nil {
		r.success = false
		r.text(evt.UserID, textAnswerOff, menuButton)
		return
	}
	if b.answerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.answerTimeout)
		defer cancel()
	}
	text, err := b.answerer.AnswerHealthQuestion(ctx, evt.Payload)
	if err != nil {
		slog.Error("Bot.answer: question answering failed", "user_id", evt.UserID, "error", err)
		r.success = false
		r.text(evt.UserID, textAnswerFailed, menuButton)
		return
	}
	r.text(evt.UserID, text, menuButton)
}
