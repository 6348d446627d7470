package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

// MarkConversationAsRead advances the caller's read cursor to lastMessageID's
// sentAt, or to the database clock when lastMessageID is nil.
func (s *ChatService) MarkConversationAsRead(
	ctx context.Context,
	userID int64,
	conversationID int64,
	lastMessageID *int64,
) error {
	repos := s.store.Repos()
	conversation, err := s.guard(repos).Authorize(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	var upTo *models.Message
	if lastMessageID != nil {
		message, err := repos.messages.GetByID(ctx, *lastMessageID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrMessageNotFound
			}
			return err
		}
		if message.ConversationID != conversation.ID {
			return ErrInvalidOperation
		}
		upTo = message
	}

	return s.markRead(ctx, userID, conversation, upTo)
}

func (s *ChatService) markRead(
	ctx context.Context,
	userID int64,
	conversation *models.Conversation,
	upTo *models.Message,
) error {
	err := s.store.WithinTx(ctx, func(tx chatRepos) error {
		var upToAt *time.Time
		if upTo != nil {
			sentAt := upTo.SentAt
			upToAt = &sentAt
		}

		participant, err := tx.participants.MarkRead(ctx, conversation.ID, userID, upToAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrForbidden
			}
			return err
		}
		if participant.LastReadAt == nil {
			return nil
		}

		_, err = tx.messages.MarkReadUpTo(ctx, conversation.ID, userID, *participant.LastReadAt)
		return err
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events.Event{
		Type:           events.TypeConversationRead,
		ConversationID: conversation.ID,
		ActorID:        userID,
		RecipientIDs:   []int64{conversation.OtherParty(userID)},
	})
	return nil
}

func (s *ChatService) UnreadCount(ctx context.Context, userID int64, conversationID int64) (int, error) {
	repos := s.store.Repos()
	if _, err := s.guard(repos).Authorize(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return repos.participants.UnreadCount(ctx, conversationID, userID)
}

// GetConversationMessages returns one window of the conversation, oldest first.
// Only the reset fetch (page 1, no cursor) advances the read cursor.
func (s *ChatService) GetConversationMessages(
	ctx context.Context,
	userID int64,
	conversationID int64,
	query MessageQuery,
) (*models.MessagePage, error) {
	if query.Page > MaxMessagePage {
		return nil, newFieldError("page", "max", fmt.Sprintf("page must be at most %d", MaxMessagePage))
	}
	query = query.normalized()

	repos := s.store.Repos()
	conversation, err := s.guard(repos).Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if query.Before != nil {
		messages, err = repos.messages.ListBefore(ctx, conversationID, *query.Before, query.PageSize+1)
	} else {
		messages, err = repos.messages.ListPage(ctx, conversationID, query.PageSize+1, (query.Page-1)*query.PageSize)
	}
	if err != nil {
		return nil, err
	}

	hasNext := len(messages) > query.PageSize
	if hasNext {
		messages = messages[:query.PageSize]
	}

	if query.isReset() && len(messages) > 0 {
		if err := s.markRead(ctx, userID, conversation, &messages[0]); err != nil {
			return nil, err
		}
	} else if err := repos.participants.TouchSeen(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	views, err := s.projectMessages(ctx, repos, userID, conversation, messages)
	if err != nil {
		return nil, err
	}

	view, err := s.conversationView(ctx, repos, userID, conversation)
	if err != nil {
		return nil, err
	}

	page := &models.MessagePage{
		Conversation:    view,
		Messages:        views,
		Page:            query.Page,
		PageSize:        query.PageSize,
		HasNextPage:     hasNext,
		HasPreviousPage: query.Page > 1 || query.Before != nil,
	}
	if hasNext {
		oldest := messages[0].Cursor()
		page.NextCursor = &oldest
	}
	return page, nil
}
