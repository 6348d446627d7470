package services

import (
	"context"
	"strings"

	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/metrics"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

// AddReaction is idempotent per (message, user, emoji).
func (s *ChatService) AddReaction(
	ctx context.Context,
	userID int64,
	messageID int64,
	emoji string,
) (*models.MessageView, error) {
	return s.toggleReaction(ctx, userID, messageID, emoji, true)
}

// RemoveReaction is a no-op when the reaction does not exist.
func (s *ChatService) RemoveReaction(
	ctx context.Context,
	userID int64,
	messageID int64,
	emoji string,
) (*models.MessageView, error) {
	return s.toggleReaction(ctx, userID, messageID, emoji, false)
}

func (s *ChatService) toggleReaction(
	ctx context.Context,
	userID int64,
	messageID int64,
	emoji string,
	add bool,
) (*models.MessageView, error) {
	input := reactionInput{Emoji: strings.TrimSpace(emoji)}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	message, conversation, err := s.loadAuthorized(ctx, repos, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, ErrInvalidOperation
	}

	action := "removed"
	eventType := events.TypeReactionRemoved
	if add {
		action = "added"
		eventType = events.TypeReactionAdded
		err = repos.reactions.Add(ctx, messageID, userID, input.Emoji)
	} else {
		err = repos.reactions.Remove(ctx, messageID, userID, input.Emoji)
	}
	if err != nil {
		return nil, err
	}

	metrics.Reactions.WithLabelValues(action).Inc()
	s.dispatch(ctx, events.Event{
		Type:           eventType,
		ConversationID: conversation.ID,
		MessageID:      messageID,
		ActorID:        userID,
		RecipientIDs:   []int64{conversation.OtherParty(userID)},
		Emoji:          input.Emoji,
	})

	return s.projectOne(ctx, repos, userID, conversation, message)
}
