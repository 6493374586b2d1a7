// Package telegraph posts linegrade alerts to chat platforms (Slack, Discord).
package telegraph

import "context"

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter owns its connection to a single chat platform.
type Adapter interface {
	// Name identifies the platform in logs, e.g. "slack".
	Name() string

	// Connect prepares the platform client. It is safe to call twice.
	Connect(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close releases the platform client.
	Close() error
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel; empty uses the adapter default
	Text      string           // message text, also the fallback for events
	Events    []FormattedEvent // structured event attachments
}

// FormattedEvent is one alert rendered for display in chat.
type FormattedEvent struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color hint, e.g. "#e53935"
	Fields   []Field
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}
