package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mock.Messages()
	if len(got) != 1 || got[0].Body != "Hello Test" || got[0].To != "12345" {
		t.Fatalf("unexpected messages: %+v", got)
	}

	mock.Fail = true
	if err := mock.SendMessage(ctx, "12345", "again"); !errors.Is(err, ErrMockFailure) {
		t.Fatalf("expected ErrMockFailure, got %v", err)
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+79990000000", "whatsapp:+79990000000"},
		{"whatsapp:+79990000000", "whatsapp:+79990000000"},
	}
	for _, tt := range tests {
		if got := Address(tt.in); got != tt.want {
			t.Errorf("Address(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := StripAddress("whatsapp:+79990000000"); got != "79990000000" {
		t.Errorf("StripAddress = %q", got)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+15550001"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}
