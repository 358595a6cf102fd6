package catalog

import (
	"strings"
	"testing"
)

const productsCSV = `РЕКОМЕНДОВАНО,ИЗБЕГАТЬ
Гречка,Жирная свинина
Творог нежирный,Копчёности
Молоко,Жирное молоко
`

func TestProductChecker_Check(t *testing.T) {
	c, err := ParseProducts(strings.NewReader(productsCSV))
	if err != nil {
		t.Fatalf("ParseProducts failed: %v", err)
	}
	tests := []struct {
		query string
		want  Verdict
	}{
		{"гречка", VerdictAllowed},
		{"  ТВОРОГ  ", VerdictAllowed},
		{"свинина", VerdictAvoid},
		{"копчености", VerdictAvoid},
		{"молоко", VerdictConflicting},
		{"ананас", VerdictUnknown},
		{"", VerdictUnknown},
	}
	for _, tt := range tests {
		if got := c.Check(tt.query); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestVerdict_ReplyIsDistinct(t *testing.T) {
	seen := make(map[string]Verdict)
	for _, v := range []Verdict{VerdictUnknown, VerdictAllowed, VerdictAvoid, VerdictConflicting} {
		reply := v.Reply()
		if reply == "" {
			t.Errorf("%v has empty reply", v)
		}
		if prev, dup := seen[reply]; dup {
			t.Errorf("%v and %v share a reply", v, prev)
		}
		seen[reply] = v
	}
}
