package navigation

import "github.com/BTreeMap/pyoots/internal/catalog"

// Context is a user's position in the catalog plus the token map of the screen
// currently shown to them. It is owned by the user's conversation and is replaced,
// never merged, on every transition.
type Context struct {
	Meal     catalog.Meal
	Category string
	Item     string
	// Tokens maps each token rendered on the current screen to its label.
	Tokens map[string]string
	// ReturnTo is the ancestor token captured when the rating sub-flow was entered.
	ReturnTo string
}

// Resolve returns the label a token was rendered with on the current screen.
func (c Context) Resolve(token string) (string, bool) {
	label, ok := c.Tokens[token]
	return label, ok
}

// Empty reports whether the context holds no catalog position.
func (c Context) Empty() bool {
	return c.Meal == "" && c.Category == "" && c.Item == "" && len(c.Tokens) == 0
}
