package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/delivery"
	"github.com/BTreeMap/pyoots/internal/models"
	"github.com/BTreeMap/pyoots/internal/navigation"
	"github.com/BTreeMap/pyoots/internal/session"
	"github.com/BTreeMap/pyoots/internal/store"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeAnswerer struct {
	answer string
	err    error
	asked  []string
}

func (f *fakeAnswerer) AnswerHealthQuestion(ctx context.Context, q string) (string, error) {
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

type noopSender struct{}

func (noopSender) Send(ctx context.Context, msg models.Outbound) error { return nil }

type harness struct {
	bot   *Bot
	store *store.InMemoryStore
	clock time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st := store.NewInMemoryStore()
	idx := catalog.NewIndex(map[catalog.Meal][]catalog.Recipe{
		catalog.Lunch: {
			{Name: "Борщ", Category: "Первое блюдо", Ingredients: "Свёкла", Preparation: "Варить"},
			{Name: "Щи", Category: "Первое блюдо", Ingredients: "Капуста", Preparation: "Варить"},
			{Name: "Уха", Category: "Первое блюдо", Ingredients: "Рыба", Preparation: "Варить 20 минут"},
		},
	})
	tracker := session.NewTracker(st)
	b := New(Deps{
		Store:     st,
		Navigator: navigation.NewNavigator(navigation.NewMachine(idx), st),
		Tracker:   tracker,
		Log:       session.NewInteractionLog(tracker, st),
		Products:  catalog.NewProductChecker([]string{"Гречка"}, []string{"Сало"}),
		Moods:     delivery.NewCheckIn(st, noopSender{}, time.UTC),
	}, opts...)
	h := &harness{bot: b, store: st, clock: base}
	b.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) send(kind models.EventKind, payload string) []models.Outbound {
	return h.bot.Handle(context.Background(), models.Event{
		UserID:      "u1",
		DisplayName: "Anna",
		Kind:        kind,
		Payload:     payload,
		Time:        h.clock,
	})
}

func (h *harness) tick(d time.Duration) { h.clock = h.clock.Add(d) }

func buttonTokens(out models.Outbound) []string {
	var tokens []string
	for _, b := range out.Buttons {
		tokens = append(tokens, b.Token)
	}
	return tokens
}

func hasButton(out models.Outbound, token string) bool {
	for _, b := range out.Buttons {
		if b.Token == token {
			return true
		}
	}
	return false
}

func TestHandle_StartRendersRootAndRecords(t *testing.T) {
	h := newHarness(t)
	out := h.send(models.EventCommand, CmdStart)
	if len(out) != 1 || out[0].Text != navigation.TextWelcome || out[0].ChatID != "u1" {
		t.Fatalf("unexpected root reply: %+v", out)
	}
	if !hasButton(out[0], navigation.TokenHealthyRecipes) || !hasButton(out[0], navigation.TokenAskQuestion) {
		t.Fatalf("root buttons missing: %v", buttonTokens(out[0]))
	}

	ctx := context.Background()
	u, err := h.store.GetUser(ctx, "u1")
	if err != nil || u.DisplayName != "Anna" || u.InteractionCount != 1 {
		t.Fatalf("user not upserted: %+v %v", u, err)
	}
	ins, _ := h.store.ListInteractions(ctx, "u1")
	if len(ins) != 1 || ins[0].Action != models.ActionCommand || ins[0].Payload != CmdStart || !ins[0].Success {
		t.Fatalf("unexpected interactions: %+v", ins)
	}
}

func TestHandle_RecipeFlowAndRating(t *testing.T) {
	h := newHarness(t)
	h.send(models.EventCommand, CmdStart)
	h.send(models.EventButton, navigation.TokenHealthyRecipes)
	out := h.send(models.EventButton, string(catalog.Lunch))
	catToken := navigation.CategoryToken(catalog.Lunch, "Первое блюдо")
	if !hasButton(out[0], catToken) {
		t.Fatalf("category token missing: %v", buttonTokens(out[0]))
	}
	h.send(models.EventButton, catToken)
	out = h.send(models.EventButton, navigation.ItemToken(catalog.Lunch, 2))
	if !strings.Contains(out[0].Text, "Уха") || !hasButton(out[0], navigation.TokenRateRecipe) {
		t.Fatalf("unexpected detail: %+v", out[0])
	}
	h.send(models.EventButton, navigation.TokenRateRecipe)
	out = h.send(models.EventButton, navigation.RatingToken(4))
	if !hasButton(out[0], catToken) {
		t.Fatalf("thank-you screen lacks back-to-category token: %v", buttonTokens(out[0]))
	}

	ctx := context.Background()
	ratings, _ := h.store.ListRatings(ctx, "u1")
	if len(ratings) != 1 || ratings[0].RecipeName != "Уха" || ratings[0].Value != 4 || ratings[0].RecipeType != "lunch" {
		t.Fatalf("unexpected ratings: %+v", ratings)
	}

	ins, _ := h.store.ListInteractions(ctx, "u1")
	want := []models.ActionType{
		models.ActionCommand, models.ActionButtonClick, models.ActionButtonClick, models.ActionButtonClick,
		models.ActionRecipeView, models.ActionRateButton, models.ActionSubmitRating,
	}
	if len(ins) != len(want) {
		t.Fatalf("got %d interactions, want %d", len(ins), len(want))
	}
	for i, a := range want {
		if ins[i].Action != a {
			t.Errorf("interaction %d action = %s, want %s", i, ins[i].Action, a)
		}
		if ins[i].SessionID != ins[0].SessionID {
			t.Errorf("interaction %d in session %d, want %d", i, ins[i].SessionID, ins[0].SessionID)
		}
	}
}

func TestHandle_ExpiredItemIsRecordedAsFailure(t *testing.T) {
	h := newHarness(t)
	out := h.send(models.EventButton, navigation.ItemToken(catalog.Lunch, 0))
	if len(out) != 1 || len(out[0].Buttons) == 0 {
		t.Fatalf("expired screen must offer a way back: %+v", out)
	}
	ins, _ := h.store.ListInteractions(context.Background(), "u1")
	if len(ins) != 1 || ins[0].Success {
		t.Fatalf("expected one failed interaction, got %+v", ins)
	}
}

func TestHandle_QuestionFlow(t *testing.T) {
	ans := &fakeAnswerer{answer: "Да, можно."}
	h := newHarness(t, WithAnswerer(ans))

	out := h.send(models.EventButton, navigation.TokenAskQuestion)
	if out[0].Text != textAskQuestion || h.bot.Conversation("u1").Mode != ModeAwaitingQuestion {
		t.Fatalf("unexpected ask prompt: %+v mode=%s", out, h.bot.Conversation("u1").Mode)
	}
	out = h.send(models.EventText, "Можно ли гречку?")
	if out[0].Text != "Да, можно." || !hasButton(out[0], navigation.TokenBackToMenu) {
		t.Fatalf("unexpected answer: %+v", out)
	}
	if h.bot.Conversation("u1").Mode != ModeMenu {
		t.Errorf("mode after answer = %s", h.bot.Conversation("u1").Mode)
	}

	ans.err = errors.New("upstream exploded: secret details")
	out = h.send(models.EventText, "ещё вопрос")
	if out[0].Text != textAnswerFailed {
		t.Fatalf("expected friendly failure text, got %q", out[0].Text)
	}
	if len(ans.asked) != 2 {
		t.Errorf("answerer called %d times", len(ans.asked))
	}
}

func TestHandle_QuestionWithoutAnswerer(t *testing.T) {
	h := newHarness(t)
	out := h.send(models.EventText, "привет")
	if out[0].Text != textAnswerOff {
		t.Fatalf("expected unavailable text, got %q", out[0].Text)
	}
	ins, _ := h.store.ListInteractions(context.Background(), "u1")
	if len(ins) != 1 || ins[0].Action != models.ActionGPTQuestion || ins[0].Success {
		t.Fatalf("unexpected interaction: %+v", ins)
	}
}

func TestHandle_ProductCheck(t *testing.T) {
	h := newHarness(t, WithSpecialistChat("specialists"))

	h.send(models.EventButton, navigation.TokenCheckProduct)
	out := h.send(models.EventText, "гречка")
	if len(out) != 1 || out[0].Text != catalog.VerdictAllowed.Reply() {
		t.Fatalf("unexpected verdict: %+v", out)
	}

	h.send(models.EventButton, navigation.TokenCheckProduct)
	out = h.send(models.EventText, "кумкват")
	if len(out) != 2 || out[0].Text != catalog.VerdictUnknown.Reply() || out[1].ChatID != "specialists" {
		t.Fatalf("expected verdict plus specialist forward, got %+v", out)
	}
	if !strings.Contains(out[1].Text, "кумкват") {
		t.Errorf("forward lacks the product: %q", out[1].Text)
	}
}

func TestHandle_MoodButton(t *testing.T) {
	h := newHarness(t)
	out := h.send(models.EventButton, navigation.MoodToken(models.MoodHappy))
	if out[0].Text != delivery.MoodReply(models.MoodHappy) {
		t.Fatalf("unexpected mood reply %q", out[0].Text)
	}
	stats, _ := h.store.MoodStats(context.Background(), base.Add(-time.Hour))
	if stats.Counts[models.MoodHappy] != 1 {
		t.Fatalf("mood not stored: %+v", stats)
	}

	out = h.send(models.EventButton, "mood_furious")
	if out[0].Text != textMoodFailed {
		t.Fatalf("expected failure text for unknown mood, got %q", out[0].Text)
	}
}

func TestHandle_CancelClosesSession(t *testing.T) {
	h := newHarness(t)
	h.send(models.EventCommand, CmdStart)
	h.send(models.EventButton, navigation.TokenHealthyRecipes)
	h.tick(time.Minute)
	out := h.send(models.EventCommand, CmdCancel)
	if out[0].Text != textCancelled {
		t.Fatalf("unexpected cancel reply %q", out[0].Text)
	}
	if !h.bot.Conversation("u1").Nav.Empty() {
		t.Error("navigation context not reset")
	}

	ctx := context.Background()
	sessions, _ := h.store.ListSessions(ctx, "u1")
	if len(sessions) != 1 || !sessions[0].Completed || sessions[0].DurationSeconds != 60 {
		t.Fatalf("expected one completed 60s session, got %+v", sessions)
	}

	h.tick(time.Minute)
	h.send(models.EventCommand, CmdStart)
	sessions, _ = h.store.ListSessions(ctx, "u1")
	if len(sessions) != 2 || sessions[1].Source != models.SessionSourceContinuation {
		t.Fatalf("expected a continuation session, got %+v", sessions)
	}
}

func TestHandle_InactivityOpensNewSession(t *testing.T) {
	h := newHarness(t)
	h.send(models.EventCommand, CmdStart)
	h.tick(4 * time.Minute)
	h.send(models.EventButton, navigation.TokenAbout)
	h.tick(6 * time.Minute)
	h.send(models.EventButton, navigation.TokenBackToMenu)

	sessions, _ := h.store.ListSessions(context.Background(), "u1")
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[0].Completed || sessions[0].DurationSeconds != 240 {
		t.Errorf("first session = %+v, want completed with 240s", sessions[0])
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	h := newHarness(t)
	out := h.send(models.EventCommand, "/frobnicate")
	if out[0].Text != textUnknownCmd || !hasButton(out[0], navigation.TokenStart) {
		t.Fatalf("unexpected reply: %+v", out)
	}
}

func TestHandle_CancelForgetsConversation(t *testing.T) {
	h := newHarness(t)
	h.send(models.EventCommand, CmdStart)
	h.send(models.EventButton, navigation.TokenHealthyRecipes)
	if h.bot.convs.len() != 1 {
		t.Fatalf("expected one conversation, got %d", h.bot.convs.len())
	}
	h.send(models.EventCommand, CmdCancel)
	if n := h.bot.convs.len(); n != 0 {
		t.Errorf("conversation kept after cancel, %d entries", n)
	}
}

func TestEvictIdle_DropsOnlyStaleConversations(t *testing.T) {
	h := newHarness(t, WithConversationTTL(time.Hour))
	h.send(models.EventCommand, CmdStart)
	h.tick(30 * time.Minute)
	h.bot.Handle(context.Background(), models.Event{UserID: "u2", Kind: models.EventCommand, Payload: CmdStart, Time: h.clock})
	h.tick(31 * time.Minute)

	if n := h.bot.EvictIdle(); n != 1 {
		t.Fatalf("evicted %d conversations, want 1", n)
	}
	if h.bot.convs.len() != 1 {
		t.Fatalf("expected u2 to remain, got %d entries", h.bot.convs.len())
	}

	h.send(models.EventCommand, CmdStart)
	if h.bot.convs.len() != 2 {
		t.Errorf("u1 conversation not recreated, %d entries", h.bot.convs.len())
	}
}
