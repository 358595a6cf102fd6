package navigation

import (
	"strconv"

	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/models"
)

// State identifies the screen a transition rendered.
type State int

const (
	StateRoot State = iota
	StateAbout
	StateMealTypeList
	StateCategoryList
	StateItemList
	StateItemDetail
	StateRatingPrompt
	StateRatingThankYou
	StateExpired
	StateNotFound
	StateRatingFailed
)

func (s State) String() string {
	switch s {
	case StateRoot:
		return "root"
	case StateAbout:
		return "about"
	case StateMealTypeList:
		return "meal_type_list"
	case StateCategoryList:
		return "category_list"
	case StateItemList:
		return "item_list"
	case StateItemDetail:
		return "item_detail"
	case StateRatingPrompt:
		return "rating_prompt"
	case StateRatingThankYou:
		return "rating_thank_you"
	case StateExpired:
		return "expired"
	case StateNotFound:
		return "not_found"
	case StateRatingFailed:
		return "rating_failed"
	default:
		return "unknown"
	}
}

// Catalog is the read-only recipe lookup the machine navigates.
type Catalog interface {
	Categories(meal catalog.Meal) []string
	Items(meal catalog.Meal, category string) []string
	Detail(meal catalog.Meal, name string) (string, bool)
}

// Screen is a rendered state: text plus the choices offered.
type Screen struct {
	State   State
	Text    string
	Buttons []models.Button
}

// Result is the outcome of one transition.
type Result struct {
	Screen  Screen
	Context Context
	// Rating is set when the transition accepted a rating that still has to be stored.
	// UserID and CreatedAt are left for the caller.
	Rating *models.Rating
}

// Machine computes transitions. It holds no per-user state.
type Machine struct {
	catalog Catalog
}

// NewMachine creates a Machine over the given catalog.
func NewMachine(c Catalog) *Machine {
	return &Machine{catalog: c}
}

// Transition maps the current context and an incoming token to the next screen and
// context. It never fails: every miss renders an error screen with a way back.
func (m *Machine) Transition(nav Context, tok Token) Result {
	switch tok.Kind {
	case KindRoot:
		return Result{Screen: rootScreen()}
	case KindAbout:
		return Result{Screen: aboutScreen()}
	case KindHealthyRecipes:
		return Result{Screen: mealTypeScreen()}
	case KindMeal:
		return m.categoryList(tok.Meal)
	case KindCategory:
		return m.itemList(tok.Meal, tok.Payload)
	case KindItem:
		return m.itemDetail(nav, tok)
	case KindRate:
		return m.ratingPrompt(nav)
	case KindRating:
		return m.rating(nav, tok)
	default:
		return Result{
			Screen:  notFoundScreen(textUnknownChoice, []models.Button{{Label: labelMainMenu, Token: TokenStart}}),
			Context: breadcrumb(nav),
		}
	}
}

func (m *Machine) categoryList(meal catalog.Meal) Result {
	cats := m.catalog.Categories(meal)
	back := mealBack(meal)
	if len(cats) == 0 {
		return Result{Screen: notFoundScreen(textNoCategories(meal), []models.Button{{Label: labelBack, Token: back}})}
	}
	nav := Context{Meal: meal, Tokens: make(map[string]string, len(cats)+1)}
	buttons := make([]models.Button, 0, len(cats)+2)
	for _, c := range cats {
		t := CategoryToken(meal, c)
		nav.Tokens[t] = c
		buttons = append(buttons, models.Button{Label: c, Token: t})
	}
	if meal == catalog.Lunch {
		nav.Tokens[string(catalog.Drinks)] = labelDrinks
		buttons = append(buttons, models.Button{Label: labelDrinks, Token: string(catalog.Drinks)})
	}
	buttons = append(buttons, models.Button{Label: labelBack, Token: back})
	return Result{
		Screen:  Screen{State: StateCategoryList, Text: textChooseCategory(meal), Buttons: buttons},
		Context: nav,
	}
}

func (m *Machine) itemList(meal catalog.Meal, category string) Result {
	items := m.catalog.Items(meal, category)
	if len(items) == 0 {
		return Result{
			Screen:  notFoundScreen(textEmptyCategory(category), []models.Button{{Label: labelBack, Token: string(meal)}}),
			Context: Context{Meal: meal},
		}
	}
	nav := Context{Meal: meal, Category: category, Tokens: make(map[string]string, len(items))}
	buttons := make([]models.Button, 0, len(items)+1)
	for i, name := range items {
		t := ItemToken(meal, i)
		nav.Tokens[t] = name
		buttons = append(buttons, models.Button{Label: name, Token: t})
	}
	buttons = append(buttons, models.Button{Label: labelBack, Token: string(meal)})
	return Result{
		Screen:  Screen{State: StateItemList, Text: textChooseItem(category), Buttons: buttons},
		Context: nav,
	}
}

func (m *Machine) itemDetail(nav Context, tok Token) Result {
	name, ok := nav.Resolve(tok.Raw)
	if !ok || nav.Meal != tok.Meal || nav.Category == "" {
		return expired(nav, tok.Meal)
	}
	catTok := CategoryToken(nav.Meal, nav.Category)
	detail, ok := m.catalog.Detail(nav.Meal, name)
	if !ok {
		return Result{
			Screen:  notFoundScreen(textItemGone(name), []models.Button{{Label: labelBack, Token: catTok}}),
			Context: Context{Meal: nav.Meal, Category: nav.Category},
		}
	}
	return Result{
		Screen: Screen{
			State: StateItemDetail,
			Text:  detail,
			Buttons: []models.Button{
				{Label: labelRate, Token: TokenRateRecipe},
				{Label: labelBack, Token: catTok},
			},
		},
		Context: Context{
			Meal:     nav.Meal,
			Category: nav.Category,
			Item:     name,
			Tokens:   map[string]string{TokenRateRecipe: labelRate, catTok: labelBack},
		},
	}
}

func (m *Machine) ratingPrompt(nav Context) Result {
	if nav.Item == "" || nav.Category == "" {
		return expired(nav, nav.Meal)
	}
	returnTo := CategoryToken(nav.Meal, nav.Category)
	next := Context{
		Meal:     nav.Meal,
		Category: nav.Category,
		Item:     nav.Item,
		ReturnTo: returnTo,
		Tokens:   make(map[string]string, models.MaxRatingValue+1),
	}
	buttons := make([]models.Button, 0, models.MaxRatingValue+1)
	for v := models.MinRatingValue; v <= models.MaxRatingValue; v++ {
		t := RatingToken(v)
		label := strconv.Itoa(v)
		next.Tokens[t] = label
		buttons = append(buttons, models.Button{Label: label, Token: t})
	}
	next.Tokens[returnTo] = labelCancel
	buttons = append(buttons, models.Button{Label: labelCancel, Token: returnTo})
	return Result{
		Screen:  Screen{State: StateRatingPrompt, Text: textRatePrompt(nav.Item), Buttons: buttons},
		Context: next,
	}
}

func (m *Machine) rating(nav Context, tok Token) Result {
	v, err := strconv.Atoi(tok.Payload)
	if err != nil || v < models.MinRatingValue || v > models.MaxRatingValue {
		return expired(nav, nav.Meal)
	}
	// ReturnTo is only set while a rating prompt (or its thank-you screen) is current.
	if nav.Item == "" || nav.Category == "" || nav.ReturnTo == "" {
		return expired(nav, nav.Meal)
	}
	returnTo := nav.ReturnTo
	// Item and ReturnTo survive so a repeated rating tap is accepted again.
	next := Context{
		Meal:     nav.Meal,
		Category: nav.Category,
		Item:     nav.Item,
		ReturnTo: returnTo,
		Tokens:   map[string]string{returnTo: labelBack, TokenStart: labelMainMenu},
	}
	return Result{
		Screen: Screen{
			State: StateRatingThankYou,
			Text:  textRatingThanks(nav.Item, v),
			Buttons: []models.Button{
				{Label: labelBack, Token: returnTo},
				{Label: labelMainMenu, Token: TokenStart},
			},
		},
		Context: next,
		Rating: &models.Rating{
			RecipeType: string(nav.Meal),
			RecipeName: nav.Item,
			Value:      v,
		},
	}
}

// expired renders the stale-selection screen with a route to the nearest stable
// ancestor: the category when known, else the meal's category list, else the menu.
func expired(nav Context, meal catalog.Meal) Result {
	var buttons []models.Button
	switch {
	case nav.Meal != "" && nav.Category != "":
		buttons = append(buttons, models.Button{Label: labelBack, Token: CategoryToken(nav.Meal, nav.Category)})
	case meal != "":
		buttons = append(buttons, models.Button{Label: labelBack, Token: string(meal)})
	}
	buttons = append(buttons, models.Button{Label: labelMainMenu, Token: TokenStart})
	return Result{
		Screen:  Screen{State: StateExpired, Text: textExpired, Buttons: buttons},
		Context: breadcrumb(nav),
	}
}

// breadcrumb keeps only the stable part of a context.
func breadcrumb(nav Context) Context {
	return Context{Meal: nav.Meal, Category: nav.Category}
}

func mealBack(meal catalog.Meal) string {
	if meal == catalog.Drinks {
		return string(catalog.Lunch)
	}
	return TokenHealthyRecipes
}
