package models

import "time"

// EventKind classifies an inbound user action.
type EventKind string

const (
	// EventButton is a press of a previously rendered button; Payload holds its token.
	EventButton EventKind = "button"
	// EventText is free text typed by the user.
	EventText EventKind = "text"
	// EventCommand is a slash command; Payload holds the command without arguments.
	EventCommand EventKind = "command"
)

// Event is a transport-neutral inbound user action.
type Event struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Kind        EventKind `json:"kind"`
	Payload     string    `json:"payload"`
	MessageID   string    `json:"message_id,omitempty"`
	Time        time.Time `json:"time"`
}

// Button is one selectable option on an outbound screen.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Outbound is a transport-neutral message with optional buttons.
type Outbound struct {
	ChatID  string   `json:"chat_id"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
	// Notice marks an unsolicited message such as a broadcast; it leaves the
	// chat's current choices in place.
	Notice bool `json:"notice,omitempty"`
}
