package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/metrics"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"go.uber.org/zap"
)

func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID int64,
	input SendMessageInput,
) (*ChatDelivery, error) {
	input.Content = strings.TrimSpace(input.Content)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	conversation, err := s.guard(repos).Authorize(ctx, senderID, input.ConversationID)
	if err != nil {
		return nil, err
	}

	messageType := models.MessageTypeText
	if raw := strings.TrimSpace(input.Type); raw != "" {
		parsed, ok := models.ParseMessageType(raw)
		if !ok {
			return nil, newFieldError("type", "oneof", "type must be one of Text, Image, File, ProjectInvite, InvoiceShare")
		}
		messageType = parsed
	}
	if messageType == models.MessageTypeSystem {
		return nil, ErrInvalidOperation
	}

	var mimeType string
	if input.Attachment != nil {
		if s.attachments == nil {
			return nil, ErrStorageUnavailable
		}
		inferred, detected, err := s.attachments.Validate(input.Attachment)
		if err != nil {
			return nil, err
		}
		mimeType = detected
		switch messageType {
		case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
			messageType = inferred
		}
	} else {
		if input.Content == "" {
			return nil, newFieldError("content", "required", "content is required unless an attachment is present")
		}
		if messageType == models.MessageTypeImage || messageType == models.MessageTypeFile {
			return nil, newFieldError("attachment", "required", "attachment is required for Image and File messages")
		}
	}

	if input.ReplyToMessageID != nil {
		target, err := repos.messages.GetByID(ctx, *input.ReplyToMessageID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrInvalidOperation
			}
			return nil, err
		}
		if target.ConversationID != conversation.ID {
			return nil, ErrInvalidOperation
		}
	}

	var attachment *models.Attachment
	if input.Attachment != nil {
		attachment, err = s.attachments.Store(ctx, conversation.ID, input.Attachment, mimeType)
		if err != nil {
			return nil, err
		}
	}

	message := models.Message{
		ConversationID:   conversation.ID,
		SenderID:         senderID,
		Content:          input.Content,
		Type:             messageType,
		Attachment:       attachment,
		ReplyToMessageID: input.ReplyToMessageID,
	}
	err = s.store.WithinTx(ctx, func(tx chatRepos) error {
		if err := tx.messages.Create(ctx, &message); err != nil {
			return err
		}
		return tx.conversations.TouchLastMessage(ctx, conversation.ID, message.SentAt)
	})
	if err != nil {
		if attachment != nil {
			if cleanupErr := s.attachments.Remove(context.WithoutCancel(ctx), attachment.URL); cleanupErr != nil {
				return nil, errors.Join(err, cleanupErr)
			}
		}
		return nil, err
	}

	recipientID := conversation.OtherParty(senderID)
	metrics.MessagesSent.WithLabelValues(string(message.Type)).Inc()
	s.dispatch(ctx, events.Event{
		Type:           events.TypeMessageSent,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
		ActorID:        senderID,
		RecipientIDs:   []int64{recipientID},
	})

	views, err := s.projectMessages(ctx, repos, senderID, conversation, []models.Message{message})
	if err != nil {
		return nil, err
	}

	return &ChatDelivery{
		Conversation: conversation,
		Message:      &views[0],
		RecipientID:  recipientID,
	}, nil
}

// EditMessage replaces the content of the caller's own message.
func (s *ChatService) EditMessage(
	ctx context.Context,
	userID int64,
	messageID int64,
	content string,
) (*models.MessageView, error) {
	input := editMessageInput{Content: strings.TrimSpace(content)}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	message, conversation, err := s.loadAuthorized(ctx, repos, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID || message.IsSystem {
		return nil, ErrForbidden
	}
	if message.IsDeleted {
		return nil, ErrInvalidOperation
	}

	updated, err := repos.messages.UpdateContent(ctx, messageID, input.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOperation
		}
		return nil, err
	}

	metrics.MessagesEdited.Inc()
	s.dispatch(ctx, events.Event{
		Type:           events.TypeMessageEdited,
		ConversationID: conversation.ID,
		MessageID:      messageID,
		ActorID:        userID,
		RecipientIDs:   []int64{conversation.OtherParty(userID)},
	})

	return s.projectOne(ctx, repos, userID, conversation, updated)
}

// DeleteMessage turns the caller's own message into a tombstone. Deleting an
// already deleted message returns the tombstone unchanged.
func (s *ChatService) DeleteMessage(
	ctx context.Context,
	userID int64,
	messageID int64,
) (*models.MessageView, error) {
	repos := s.store.Repos()
	message, conversation, err := s.loadAuthorized(ctx, repos, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID || message.IsSystem {
		return nil, ErrForbidden
	}
	if message.IsDeleted {
		return s.projectOne(ctx, repos, userID, conversation, message)
	}

	deleted, err := repos.messages.SoftDelete(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.Attachment != nil && s.attachments != nil {
		if err := s.attachments.Remove(ctx, message.Attachment.URL); err != nil {
			s.log.Warn("remove deleted attachment failed",
				zap.Int64("message_id", messageID),
				zap.Error(err),
			)
		}
	}

	metrics.MessagesDeleted.Inc()
	s.dispatch(ctx, events.Event{
		Type:           events.TypeMessageDeleted,
		ConversationID: conversation.ID,
		MessageID:      messageID,
		ActorID:        userID,
		RecipientIDs:   []int64{conversation.OtherParty(userID)},
	})

	return s.projectOne(ctx, repos, userID, conversation, deleted)
}

// GetAttachmentURL returns a short-lived download URL for a message attachment.
func (s *ChatService) GetAttachmentURL(ctx context.Context, userID int64, messageID int64) (string, error) {
	message, _, err := s.loadAuthorized(ctx, s.store.Repos(), userID, messageID)
	if err != nil {
		return "", err
	}

	attachment, ok := message.Body().(models.ActiveBody)
	if !ok || attachment.Attachment == nil {
		return "", ErrAttachmentNotFound
	}
	if s.attachments == nil {
		return "", ErrStorageUnavailable
	}

	return s.attachments.SignedURL(ctx, attachment.Attachment.URL)
}

func (s *ChatService) loadAuthorized(
	ctx context.Context,
	repos chatRepos,
	userID int64,
	messageID int64,
) (*models.Message, *models.Conversation, error) {
	if messageID <= 0 {
		return nil, nil, newFieldError("message_id", "gt", "message_id must be greater than 0")
	}

	message, err := repos.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrMessageNotFound
		}
		return nil, nil, err
	}

	conversation, err := s.guard(repos).Authorize(ctx, userID, message.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return message, conversation, nil
}

func (s *ChatService) projectOne(
	ctx context.Context,
	repos chatRepos,
	viewerID int64,
	conversation *models.Conversation,
	message *models.Message,
) (*models.MessageView, error) {
	views, err := s.projectMessages(ctx, repos, viewerID, conversation, []models.Message{*message})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
