package navigation

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/pyoots/internal/models"
)

// RatingSaver persists accepted ratings.
type RatingSaver interface {
	AddRating(ctx context.Context, r *models.Rating) error
}

// Navigator applies transitions and stores the ratings they produce.
type Navigator struct {
	machine *Machine
	ratings RatingSaver
	now     func() time.Time
}

// NewNavigator creates a Navigator.
func NewNavigator(machine *Machine, ratings RatingSaver) *Navigator {
	return &Navigator{machine: machine, ratings: ratings, now: time.Now}
}

// Apply runs one transition for userID. A rating that cannot be stored turns into a
// soft error screen; the conversation always continues.
func (n *Navigator) Apply(ctx context.Context, userID string, nav Context, tok Token) Result {
	res := n.machine.Transition(nav, tok)
	slog.Debug("Navigator.Apply: transition", "user_id", userID, "token", tok.Raw, "kind", tok.Kind, "state", res.Screen.State)
	if res.Rating == nil {
		return res
	}

	res.Rating.UserID = userID
	res.Rating.CreatedAt = n.now()
	if err := n.ratings.AddRating(ctx, res.Rating); err != nil {
		slog.Error("Navigator.Apply: failed to save rating", "user_id", userID,
			"recipe_type", res.Rating.RecipeType, "recipe_name", res.Rating.RecipeName, "error", err)
		res.Screen = ratingFailedScreen()
		res.Context = breadcrumb(res.Context)
		res.Rating = nil
		return res
	}
	slog.Info("Navigator.Apply: rating saved", "user_id", userID,
		"recipe_type", res.Rating.RecipeType, "recipe_name", res.Rating.RecipeName, "value", res.Rating.Value)
	return res
}
