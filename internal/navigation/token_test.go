package navigation

import (
	"testing"

	"github.com/BTreeMap/pyoots/internal/catalog"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		raw     string
		kind    Kind
		meal    catalog.Meal
		payload string
	}{
		{"start", KindRoot, "", ""},
		{"back_to_menu", KindRoot, "", ""},
		{"about", KindAbout, "", ""},
		{"healthy_recipes", KindHealthyRecipes, "", ""},
		{"check_product", KindCheckProduct, "", ""},
		{"ask_question", KindAskQuestion, "", ""},
		{"rate_recipe", KindRate, "", ""},
		{"lunch", KindMeal, catalog.Lunch, ""},
		{"drinks", KindMeal, catalog.Drinks, ""},
		{"bcat_каша", KindCategory, catalog.Breakfast, "каша"},
		{"bitem_3", KindItem, catalog.Breakfast, "3"},
		{"pcat_творог", KindCategory, catalog.Poldnik, "творог"},
		{"pitem_0", KindItem, catalog.Poldnik, "0"},
		{"category_Первое блюдо", KindCategory, catalog.Lunch, "Первое блюдо"},
		{"dish_2", KindItem, catalog.Lunch, "2"},
		{"dcat_рыба", KindCategory, catalog.Dinner, "рыба"},
		{"ditem_1", KindItem, catalog.Dinner, "1"},
		{"drinks_cat_ягоды", KindCategory, catalog.Drinks, "ягоды"},
		{"drinks_name_4", KindItem, catalog.Drinks, "4"},
		{"rating_5", KindRating, "", "5"},
		{"mood_happy", KindMood, "", "happy"},
		{"rating_", KindUnknown, "", ""},
		{"nonsense", KindUnknown, "", ""},
		{"", KindUnknown, "", ""},
	}
	for _, tt := range tests {
		got := ParseToken(tt.raw)
		if got.Kind != tt.kind || got.Meal != tt.meal || got.Payload != tt.payload {
			t.Errorf("ParseToken(%q) = %+v, want kind=%v meal=%q payload=%q", tt.raw, got, tt.kind, tt.meal, tt.payload)
		}
		if got.Raw != tt.raw {
			t.Errorf("ParseToken(%q).Raw = %q", tt.raw, got.Raw)
		}
	}
}

func TestPrefixRules_LongestFirst(t *testing.T) {
	for i := 1; i < len(prefixRules); i++ {
		if len(prefixRules[i].prefix) > len(prefixRules[i-1].prefix) {
			t.Fatalf("prefix %q sorted after shorter %q", prefixRules[i].prefix, prefixRules[i-1].prefix)
		}
	}
}

func TestTokenBuilders_RoundTrip(t *testing.T) {
	for _, meal := range catalog.Meals {
		cat := ParseToken(CategoryToken(meal, "Салаты"))
		if cat.Kind != KindCategory || cat.Meal != meal || cat.Payload != "Салаты" {
			t.Errorf("category token for %s decoded as %+v", meal, cat)
		}
		item := ParseToken(ItemToken(meal, 7))
		if item.Kind != KindItem || item.Meal != meal || item.Payload != "7" {
			t.Errorf("item token for %s decoded as %+v", meal, item)
		}
	}
}
