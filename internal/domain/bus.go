package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community tier) or NATS (pro tier).
// All methods require schemeCode for per-scheme subject isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, schemeCode string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, schemeCode string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID         string            `json:"id"`
	SchemeCode string            `json:"schemeCode"`
	Topic      string            `json:"topic"`
	Payload    []byte            `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	Timestamp  int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" yaml:"type"`

	// Channel settings (community tier)
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channelBufferSize"`

	// NATS settings (pro tier)
	NATSUrl           string `json:"natsUrl" yaml:"natsUrl"`
	NATSToken         string `json:"natsToken" yaml:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"natsReconnectWait"` // seconds
}

// Standard topic names for the decision pipeline. The bus prefixes
// them with the scheme code to form the full subject.
const (
	TopicApplicationSubmitted = "application.submitted"
	TopicDecisionCreated      = "decision.created"
	TopicFraudAlert           = "fraud.alert"
	TopicPaymentTriggered     = "payment.triggered"
	TopicSubmissionCompleted  = "submission.completed"
)
