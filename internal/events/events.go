package events

import (
	"context"
	"time"
)

const (
	TypeConversationStarted = "conversation.started"
	TypeConversationRead    = "conversation.read"
	TypeMessageSent         = "message.sent"
	TypeMessageEdited       = "message.edited"
	TypeMessageDeleted      = "message.deleted"
	TypeReactionAdded       = "reaction.added"
	TypeReactionRemoved     = "reaction.removed"
)

// Event is a post-commit fact about a conversation. Consumers re-fetch state
// through the API; events carry identifiers, never message content.
type Event struct {
	Type           string    `json:"type"`
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id,omitempty"`
	ActorID        int64     `json:"actor_id"`
	RecipientIDs   []int64   `json:"recipient_ids"`
	Emoji          string    `json:"emoji,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
