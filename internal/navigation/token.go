// Package navigation implements the menu and recipe state machine.
//
// Every choice shown to a user carries a short routing token. Tokens are decoded once
// into a Token value; item tokens carry only an index, which is resolved against the
// Context stored for the screen that rendered it.
package navigation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/models"
)

// Kind is the decoded namespace of a routing token.
type Kind int

const (
	KindUnknown Kind = iota
	KindRoot
	KindAbout
	KindHealthyRecipes
	KindCheckProduct
	KindAskQuestion
	KindMeal
	KindCategory
	KindItem
	KindRate
	KindRating
	KindMood
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindAbout:
		return "about"
	case KindHealthyRecipes:
		return "healthy_recipes"
	case KindCheckProduct:
		return "check_product"
	case KindAskQuestion:
		return "ask_question"
	case KindMeal:
		return "meal"
	case KindCategory:
		return "category"
	case KindItem:
		return "item"
	case KindRate:
		return "rate"
	case KindRating:
		return "rating"
	case KindMood:
		return "mood"
	default:
		return "unknown"
	}
}

// Literal tokens.
const (
	TokenStart          = "start"
	TokenBackToMenu     = "back_to_menu"
	TokenAbout          = "about"
	TokenHealthyRecipes = "healthy_recipes"
	TokenCheckProduct   = "check_product"
	TokenAskQuestion    = "ask_question"
	TokenRateRecipe     = "rate_recipe"
)

// Token is a decoded routing token. Raw always holds the original string.
type Token struct {
	Kind    Kind
	Meal    catalog.Meal
	Payload string
	Raw     string
}

func (t Token) String() string { return t.Raw }

var exactTokens = map[string]Kind{
	TokenStart:          KindRoot,
	TokenBackToMenu:     KindRoot,
	TokenAbout:          KindAbout,
	TokenHealthyRecipes: KindHealthyRecipes,
	TokenCheckProduct:   KindCheckProduct,
	TokenAskQuestion:    KindAskQuestion,
	TokenRateRecipe:     KindRate,

	string(catalog.Breakfast): KindMeal,
	string(catalog.Poldnik):   KindMeal,
	string(catalog.Lunch):     KindMeal,
	string(catalog.Dinner):    KindMeal,
	string(catalog.Drinks):    KindMeal,
}

type prefixRule struct {
	prefix string
	kind   Kind
	meal   catalog.Meal
}

var categoryPrefix = map[catalog.Meal]string{
	catalog.Breakfast: "bcat_",
	catalog.Poldnik:   "pcat_",
	catalog.Lunch:     "category_",
	catalog.Dinner:    "dcat_",
	catalog.Drinks:    "drinks_cat_",
}

var itemPrefix = map[catalog.Meal]string{
	catalog.Breakfast: "bitem_",
	catalog.Poldnik:   "pitem_",
	catalog.Lunch:     "dish_",
	catalog.Dinner:    "ditem_",
	catalog.Drinks:    "drinks_name_",
}

const (
	ratingPrefix = "rating_"
	moodPrefix   = "mood_"
)

// prefixRules is ordered longest prefix first so a specific namespace is never
// shadowed by a shorter one.
var prefixRules = buildPrefixRules()

func buildPrefixRules() []prefixRule {
	var rules []prefixRule
	for meal, p := range categoryPrefix {
		rules = append(rules, prefixRule{prefix: p, kind: KindCategory, meal: meal})
	}
	for meal, p := range itemPrefix {
		rules = append(rules, prefixRule{prefix: p, kind: KindItem, meal: meal})
	}
	rules = append(rules,
		prefixRule{prefix: ratingPrefix, kind: KindRating},
		prefixRule{prefix: moodPrefix, kind: KindMood},
	)
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})
	return rules
}

// ParseToken decodes a raw routing token. Unrecognized input yields KindUnknown.
func ParseToken(raw string) Token {
	if kind, ok := exactTokens[raw]; ok {
		t := Token{Kind: kind, Raw: raw}
		if kind == KindMeal {
			t.Meal = catalog.Meal(raw)
		}
		return t
	}
	for _, r := range prefixRules {
		if strings.HasPrefix(raw, r.prefix) {
			payload := strings.TrimPrefix(raw, r.prefix)
			if payload == "" {
				break
			}
			return Token{Kind: r.kind, Meal: r.meal, Payload: payload, Raw: raw}
		}
	}
	return Token{Kind: KindUnknown, Raw: raw}
}

// CategoryToken builds the token selecting a category. Category names are stable
// catalog data, so these tokens resolve without a stored Context.
func CategoryToken(meal catalog.Meal, category string) string {
	return categoryPrefix[meal] + category
}

// ItemToken builds the token for the i-th item on an item list screen.
func ItemToken(meal catalog.Meal, i int) string {
	return itemPrefix[meal] + strconv.Itoa(i)
}

// RatingToken builds the token submitting a rating value.
func RatingToken(v int) string {
	return ratingPrefix + strconv.Itoa(v)
}

// MoodToken builds the token answering the daily check-in.
func MoodToken(m models.Mood) string {
	return moodPrefix + string(m)
}
