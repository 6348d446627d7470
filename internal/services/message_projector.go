package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

// projection holds everything needed to render messages for one viewer.
type projection struct {
	viewerID     int64
	conversation *models.Conversation
	participants map[int64]*models.ConversationParticipant
	users        map[int64]*models.User
	replies      map[int64]*models.Message
	reactions    map[int64][]models.MessageReaction
}

func (s *ChatService) projectMessages(
	ctx context.Context,
	repos chatRepos,
	viewerID int64,
	conversation *models.Conversation,
	messages []models.Message,
) ([]models.MessageView, error) {
	p := &projection{
		viewerID:     viewerID,
		conversation: conversation,
		participants: make(map[int64]*models.ConversationParticipant, 2),
		replies:      make(map[int64]*models.Message),
	}

	parties := []int64{conversation.PartyAID, conversation.PartyBID}
	for _, userID := range parties {
		participant, err := repos.participants.Get(ctx, conversation.ID, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, err
		}
		p.participants[userID] = participant
	}

	users, err := s.users.GetByIDs(ctx, parties)
	if err != nil {
		return nil, err
	}
	p.users = users

	messageIDs := make([]int64, 0, len(messages))
	inWindow := make(map[int64]*models.Message, len(messages))
	for i := range messages {
		messageIDs = append(messageIDs, messages[i].ID)
		inWindow[messages[i].ID] = &messages[i]
	}

	missing := make([]int64, 0)
	for i := range messages {
		replyID := messages[i].ReplyToMessageID
		if replyID == nil {
			continue
		}
		if target, ok := inWindow[*replyID]; ok {
			p.replies[*replyID] = target
			continue
		}
		missing = append(missing, *replyID)
	}
	if len(missing) > 0 {
		targets, err := repos.messages.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, target := range targets {
			if target.ConversationID == conversation.ID {
				p.replies[id] = target
			}
		}
	}

	reactions, err := repos.reactions.ListByMessageIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	p.reactions = reactions

	views := make([]models.MessageView, 0, len(messages))
	for i := range messages {
		views = append(views, p.view(&messages[i]))
	}
	return views, nil
}

func (p *projection) view(message *models.Message) models.MessageView {
	view := models.MessageView{
		ID:                  message.ID,
		ConversationID:      message.ConversationID,
		SenderID:            message.SenderID,
		Type:                message.Type,
		SentAt:              message.SentAt,
		EditedAt:            message.EditedAt,
		IsEdited:            message.IsEdited,
		DeletedAt:           message.DeletedAt,
		IsDeleted:           message.IsDeleted,
		IsSystem:            message.IsSystem,
		IsSentByCurrentUser: message.SenderID == p.viewerID,
		ReplyToMessageID:    message.ReplyToMessageID,
		Reactions:           groupReactions(p.reactions[message.ID], p.viewerID),
	}

	switch body := message.Body().(type) {
	case models.ActiveBody:
		view.Content = body.Content
		view.Attachment = body.Attachment
		view.IsImage = body.Attachment.IsImage()
	case models.DeletedBody:
		view.Content = body.Placeholder()
	}

	recipient := p.participants[p.conversation.OtherParty(message.SenderID)]
	view.IsRead = recipient.HasRead(message.SentAt)
	if view.IsRead {
		view.ReadAt = message.ReadAt
		if view.ReadAt == nil {
			view.ReadAt = recipient.LastReadAt
		}
	}
	if view.IsSentByCurrentUser {
		view.Status = deriveStatus(recipient, message)
	}

	if message.ReplyToMessageID != nil {
		if target, ok := p.replies[*message.ReplyToMessageID]; ok {
			view.ReplyTo = replyPreviewOf(target, p.users[target.SenderID])
		}
	}

	return view
}

// deriveStatus is the sender-side status. Delivered collapses into Sent because
// there is no delivery acknowledgement channel.
func deriveStatus(recipient *models.ConversationParticipant, message *models.Message) models.MessageStatus {
	if recipient.HasRead(message.SentAt) {
		return models.MessageStatusRead
	}
	return models.MessageStatusSent
}

func groupReactions(reactions []models.MessageReaction, viewerID int64) []models.ReactionGroup {
	groups := make([]models.ReactionGroup, 0)
	index := make(map[string]int)
	for _, reaction := range reactions {
		i, ok := index[reaction.Emoji]
		if !ok {
			i = len(groups)
			index[reaction.Emoji] = i
			groups = append(groups, models.ReactionGroup{Emoji: reaction.Emoji, Users: make([]models.ReactionUser, 0, 1)})
		}
		groups[i].Users = append(groups[i].Users, models.ReactionUser{
			UserID:      reaction.UserID,
			DisplayName: reaction.User.DisplayName(),
		})
		groups[i].Count++
		if reaction.UserID == viewerID {
			groups[i].HasCurrentUserReacted = true
		}
	}
	return groups
}

func replyPreviewOf(target *models.Message, sender *models.User) *models.ReplyPreview {
	preview := &models.ReplyPreview{
		ID:                target.ID,
		SenderID:          target.SenderID,
		SenderDisplayName: sender.DisplayName(),
		Type:              target.Type,
		IsDeleted:         target.IsDeleted,
	}
	switch body := target.Body().(type) {
	case models.ActiveBody:
		preview.Content = body.Content
		preview.HasAttachment = body.Attachment != nil
	case models.DeletedBody:
		preview.Content = body.Placeholder()
	}
	return preview
}

func previewOf(message *models.Message) *models.MessagePreview {
	if message == nil {
		return nil
	}
	preview := &models.MessagePreview{
		ID:        message.ID,
		SenderID:  message.SenderID,
		Type:      message.Type,
		IsDeleted: message.IsDeleted,
		SentAt:    message.SentAt,
	}
	switch body := message.Body().(type) {
	case models.ActiveBody:
		preview.Content = body.Content
		if preview.Content == "" && body.Attachment != nil {
			preview.Content = body.Attachment.Name
		}
	case models.DeletedBody:
		preview.Content = body.Placeholder()
	}
	return preview
}
