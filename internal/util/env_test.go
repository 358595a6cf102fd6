package util

import (
	"reflect"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"garbage", true, true},
	}
	for _, tt := range tests {
		t.Setenv("PYOOTS_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("PYOOTS_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("PYOOTS_TEST_DURATION", "90s")
	if got := ParseDurationEnv("PYOOTS_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("PYOOTS_TEST_DURATION", "-5s")
	if got := ParseDurationEnv("PYOOTS_TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("expected default for negative duration, got %v", got)
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(" 123, ,456 ,")
	want := []string{"123", "456"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseList() = %v, want %v", got, want)
	}
	if ParseList("") != nil {
		t.Error("expected nil for empty input")
	}
}
