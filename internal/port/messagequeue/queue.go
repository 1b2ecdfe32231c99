// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a message with an explicit message id. The broker
	// drops a second publish with the same id inside its dedup window.
	PublishMsg(ctx context.Context, subject, msgID string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// A handler error negatively acknowledges the message for redelivery.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for NATS subjects used by Upchuck.
const (
	SubjectFileChanged     = "files.changed"     // transport → intake: a source file changed
	SubjectQueueItemQueued = "queue.item.queued" // intake → workers: new work available
	SubjectQueueItemDone   = "queue.item.done"   // worker → observers: item completed or failed
	SubjectCuration        = "curation"          // curation.{event}: relayed domain events
	SubjectAgentProcess    = "agents.process"    // agents.process.{agent_type}: request/reply, not streamed
)

// AgentSubject returns the request/reply subject for one agent type.
func AgentSubject(agentType string) string {
	return SubjectAgentProcess + "." + agentType
}
