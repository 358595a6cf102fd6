// Package catalog provides the read-only recipe index and the product checker,
// both loaded from CSV files at startup.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Meal identifies a catalog branch.
type Meal string

const (
	Breakfast Meal = "breakfast"
	Poldnik   Meal = "poldnik"
	Lunch     Meal = "lunch"
	Dinner    Meal = "dinner"
	Drinks    Meal = "drinks"
)

// Meals lists every meal type in menu order.
var Meals = []Meal{Breakfast, Poldnik, Lunch, Dinner, Drinks}

// Column headers used by the recipe CSV files.
const (
	colName          = "Название завтрака:"
	colDrinkName     = "Название:"
	colIngredients   = "Ингредиенты на 1 порцию:"
	colPreparation   = "Приготовление:"
	colCategory      = "Блюдо из"
	colLunchCategory = "Тип блюда"
)

// Recipe is one catalog entry.
type Recipe struct {
	Name        string
	Category    string
	Ingredients string
	Preparation string
}

// Detail renders the recipe card shown on the item screen.
func (r Recipe) Detail() string {
	return fmt.Sprintf("🍳 %s\n\nИнгредиенты:\n%s\n\nПриготовление:\n%s", r.Name, r.Ingredients, r.Preparation)
}

// Index is an immutable, categorized view of the recipe files. Safe for concurrent use.
type Index struct {
	recipes    map[Meal][]Recipe
	categories map[Meal][]string
}

// NewIndex builds an index from already parsed recipes. Categories keep their
// first-appearance order.
func NewIndex(recipes map[Meal][]Recipe) *Index {
	idx := &Index{
		recipes:    make(map[Meal][]Recipe, len(recipes)),
		categories: make(map[Meal][]string, len(recipes)),
	}
	for meal, list := range recipes {
		seen := make(map[string]bool)
		for _, r := range list {
			if r.Name == "" {
				continue
			}
			idx.recipes[meal] = append(idx.recipes[meal], r)
			if r.Category != "" && !seen[r.Category] {
				seen[r.Category] = true
				idx.categories[meal] = append(idx.categories[meal], r.Category)
			}
		}
	}
	return idx
}

// Load reads <dir>/<meal>.csv for every meal. A missing file leaves that meal empty.
func Load(dir string) (*Index, error) {
	recipes := make(map[Meal][]Recipe, len(Meals))
	for _, meal := range Meals {
		path := filepath.Join(dir, string(meal)+".csv")
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("catalog.Load: recipe file missing, meal will be empty", "meal", meal, "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		list, err := Parse(meal, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		recipes[meal] = list
		slog.Debug("catalog.Load: loaded recipes", "meal", meal, "count", len(list))
	}
	return NewIndex(recipes), nil
}

// Parse reads one recipe CSV. The name and category columns depend on the meal.
func Parse(meal Meal, r io.Reader) ([]Recipe, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	nameCol, catCol := colName, colCategory
	switch meal {
	case Drinks:
		nameCol = colDrinkName
	case Lunch:
		catCol = colLunchCategory
	}

	var out []Recipe
	for _, row := range rows {
		rec := Recipe{
			Name:        row[nameCol],
			Category:    row[catCol],
			Ingredients: row[colIngredients],
			Preparation: row[colPreparation],
		}
		if rec.Name == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// readTable parses a headed CSV into trimmed column->value maps.
func readTable(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Categories returns the meal's categories in first-appearance order.
func (idx *Index) Categories(meal Meal) []string {
	return idx.categories[meal]
}

// Items returns the names of the recipes in a category, in file order.
func (idx *Index) Items(meal Meal, category string) []string {
	var out []string
	for _, r := range idx.recipes[meal] {
		if r.Category == category {
			out = append(out, r.Name)
		}
	}
	return out
}

// Detail returns the formatted recipe card, or false when the item is unknown.
func (idx *Index) Detail(meal Meal, name string) (string, bool) {
	for _, r := range idx.recipes[meal] {
		if r.Name == name {
			return r.Detail(), true
		}
	}
	return "", false
}
