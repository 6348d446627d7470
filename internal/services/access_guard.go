package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type conversationGetter interface {
	GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error)
}

// ParticipantGuard answers whether a user may read or write a conversation.
type ParticipantGuard struct {
	conversations conversationGetter
}

func NewParticipantGuard(conversations conversationGetter) ParticipantGuard {
	return ParticipantGuard{conversations: conversations}
}

func (g ParticipantGuard) Authorize(ctx context.Context, userID int64, conversationID int64) (*models.Conversation, error) {
	if conversationID <= 0 {
		return nil, newFieldError("conversation_id", "gt", "conversation_id must be greater than 0")
	}

	conversation, err := g.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return conversation, nil
}
