package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Verdict is the outcome of a product lookup.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictAllowed
	VerdictAvoid
	VerdictConflicting
)

const (
	colRecommended = "РЕКОМЕНДОВАНО"
	colAvoid       = "ИЗБЕГАТЬ"
)

// Reply returns the fixed user-facing text for the verdict.
func (v Verdict) Reply() string {
	switch v {
	case VerdictAllowed:
		return "✅ Этот продукт можно есть.\nВы можете спокойно употреблять этот продукт в пищу."
	case VerdictAvoid:
		return "❌ Этот продукт нельзя есть.\nК сожалению, этот продукт находится в списке нерекомендуемых."
	case VerdictConflicting:
		return "⚠️ Этот продукт есть как в списке рекомендованных, так и в списке запрещённых.\n" +
			"Поэтому вопрос передан нашим специалистам, от которых я скоро принесу Вам ответ."
	default:
		return "❓ Я не нашел информацию по этому продукту.\n" +
			"Поэтому передал вопрос нашим специалистам, от которых я скоро принесу Вам ответ."
	}
}

func (v Verdict) String() string {
	switch v {
	case VerdictAllowed:
		return "allowed"
	case VerdictAvoid:
		return "avoid"
	case VerdictConflicting:
		return "conflicting"
	default:
		return "unknown"
	}
}

// ProductChecker answers "can I eat this?" against the recommended and avoid lists.
type ProductChecker struct {
	recommended []string
	avoid       []string
}

// NewProductChecker builds a checker from raw list entries.
func NewProductChecker(recommended, avoid []string) *ProductChecker {
	return &ProductChecker{recommended: normalizeAll(recommended), avoid: normalizeAll(avoid)}
}

// LoadProducts reads the product CSV at path.
func LoadProducts(path string) (*ProductChecker, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open product list: %w", err)
	}
	defer f.Close()
	return ParseProducts(f)
}

// ParseProducts reads a CSV with РЕКОМЕНДОВАНО and ИЗБЕГАТЬ columns; either cell may be empty.
func ParseProducts(r io.Reader) (*ProductChecker, error) {
	rows, err := readTable(r)
	if err != nil {
		return nil, err
	}
	var rec, avoid []string
	for _, row := range rows {
		if v := row[colRecommended]; v != "" {
			rec = append(rec, v)
		}
		if v := row[colAvoid]; v != "" {
			avoid = append(avoid, v)
		}
	}
	return NewProductChecker(rec, avoid), nil
}

// Check classifies a product name. A query matches an entry that contains it.
func (c *ProductChecker) Check(product string) Verdict {
	q := normalize(product)
	if q == "" {
		return VerdictUnknown
	}
	inRec := containsAny(c.recommended, q)
	inAvoid := containsAny(c.avoid, q)
	switch {
	case inRec && inAvoid:
		return VerdictConflicting
	case inRec:
		return VerdictAllowed
	case inAvoid:
		return VerdictAvoid
	default:
		return VerdictUnknown
	}
}

func containsAny(list []string, q string) bool {
	for _, item := range list {
		if strings.Contains(item, q) {
			return true
		}
	}
	return false
}

// normalize lowercases, folds ё to е and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "ё", "е")
	return strings.Join(strings.Fields(s), " ")
}

func normalizeAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
