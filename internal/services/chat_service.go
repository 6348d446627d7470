package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/metrics"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

type presenceReader interface {
	Lookup(ctx context.Context, userID int64) (models.Presence, error)
}

// Notifier pushes "something changed" hints to connected clients.
type Notifier interface {
	Notify(event events.Event)
}

type ChatService struct {
	store       chatStore
	users       userReader
	projects    projectReader
	attachments *AttachmentResolver
	presence    presenceReader
	publisher   events.Publisher
	notifier    Notifier
	log         *zap.Logger
}

type ChatOption func(*ChatService)

func WithPresence(reader presenceReader) ChatOption {
	return func(s *ChatService) { s.presence = reader }
}

func WithPublisher(publisher events.Publisher) ChatOption {
	return func(s *ChatService) { s.publisher = publisher }
}

func WithNotifier(notifier Notifier) ChatOption {
	return func(s *ChatService) { s.notifier = notifier }
}

// ChatDelivery is a persisted message plus who else should hear about it.
type ChatDelivery struct {
	Conversation *models.Conversation
	Message      *models.MessageView
	RecipientID  int64
}

// NewChatService wires the messaging core. A nil attachments resolver disables
// attachment uploads.
func NewChatService(
	store chatStore,
	users userReader,
	projects projectReader,
	attachments *AttachmentResolver,
	log *zap.Logger,
	opts ...ChatOption,
) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ChatService{
		store:       store,
		users:       users,
		projects:    projects,
		attachments: attachments,
		publisher:   events.NopPublisher{},
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// isFreelancerClientPair reports whether one role is freelancer and the other client.
func isFreelancerClientPair(a, b string) bool {
	return (a == models.RoleFreelancer && b == models.RoleClient) ||
		(a == models.RoleClient && b == models.RoleFreelancer)
}

func (s *ChatService) guard(repos chatRepos) ParticipantGuard {
	return NewParticipantGuard(repos.conversations)
}

func (s *ChatService) StartConversation(
	ctx context.Context,
	initiatorID int64,
	input StartConversationInput,
) (*models.ConversationView, error) {
	input.InitialMessage = strings.TrimSpace(input.InitialMessage)
	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		if subject == "" {
			input.Subject = nil
		} else {
			input.Subject = &subject
		}
	}
	if input.ParticipantID != 0 && input.ParticipantID == initiatorID {
		return nil, ErrInvalidOperation
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	pair, err := s.users.GetByIDs(ctx, []int64{initiatorID, input.ParticipantID})
	if err != nil {
		return nil, err
	}
	initiator, participant := pair[initiatorID], pair[input.ParticipantID]
	if initiator == nil || participant == nil {
		return nil, ErrUserNotFound
	}
	if !isFreelancerClientPair(initiator.Role, participant.Role) {
		return nil, ErrInvalidOperation
	}

	if input.ProjectID != nil {
		project, err := s.projects.GetByID(ctx, *input.ProjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrProjectNotFound
			}
			return nil, err
		}
		if !projectCoversPair(project, initiatorID, input.ParticipantID) {
			return nil, ErrForbidden
		}
	}

	var conversation *models.Conversation
	var message models.Message
	created := false
	err = s.store.WithinTx(ctx, func(repos chatRepos) error {
		if err := repos.conversations.LockPair(ctx, initiatorID, input.ParticipantID); err != nil {
			return err
		}

		existing, err := repos.conversations.FindActiveBetween(ctx, initiatorID, input.ParticipantID, input.ProjectID)
		switch {
		case err == nil:
			conversation = existing
		case errors.Is(err, pgx.ErrNoRows):
			conversation = &models.Conversation{
				PartyAID:  initiatorID,
				PartyBID:  input.ParticipantID,
				ProjectID: input.ProjectID,
				Subject:   input.Subject,
			}
			if err := repos.conversations.Create(ctx, conversation); err != nil {
				return err
			}
			for _, userID := range []int64{initiatorID, input.ParticipantID} {
				if err := repos.participants.Add(ctx, conversation.ID, userID); err != nil {
					return err
				}
			}
			created = true
		default:
			return err
		}

		message = models.Message{
			ConversationID: conversation.ID,
			SenderID:       initiatorID,
			Content:        input.InitialMessage,
			Type:           models.MessageTypeText,
		}
		if err := repos.messages.Create(ctx, &message); err != nil {
			return err
		}
		return repos.conversations.TouchLastMessage(ctx, conversation.ID, message.SentAt)
	})
	if err != nil {
		return nil, err
	}

	outcome := "reused"
	if created {
		outcome = "created"
		s.dispatch(ctx, events.Event{
			Type:           events.TypeConversationStarted,
			ConversationID: conversation.ID,
			ActorID:        initiatorID,
			RecipientIDs:   []int64{input.ParticipantID},
		})
	}
	metrics.ConversationsStarted.WithLabelValues(outcome).Inc()
	metrics.MessagesSent.WithLabelValues(string(message.Type)).Inc()
	s.dispatch(ctx, events.Event{
		Type:           events.TypeMessageSent,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
		ActorID:        initiatorID,
		RecipientIDs:   []int64{input.ParticipantID},
	})

	conversation, err = s.store.Repos().conversations.GetByID(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}
	return s.conversationView(ctx, s.store.Repos(), initiatorID, conversation)
}

func projectCoversPair(project *models.Project, userA int64, userB int64) bool {
	return (project.FreelancerID == userA && project.ClientID == userB) ||
		(project.FreelancerID == userB && project.ClientID == userA)
}

func (s *ChatService) GetConversation(
	ctx context.Context,
	userID int64,
	conversationID int64,
) (*models.ConversationView, error) {
	repos := s.store.Repos()
	conversation, err := s.guard(repos).Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	return s.conversationView(ctx, repos, userID, conversation)
}

// UpdateConversationSettings changes only the caller's participant row.
func (s *ChatService) UpdateConversationSettings(
	ctx context.Context,
	userID int64,
	conversationID int64,
	settings models.ConversationSettings,
) (*models.ConversationParticipant, error) {
	if settings.IsEmpty() {
		return nil, newFieldError("settings", "required", "at least one of is_muted, is_archived, is_pinned is required")
	}

	repos := s.store.Repos()
	if _, err := s.guard(repos).Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	participant, err := repos.participants.UpdateSettings(ctx, conversationID, userID, settings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return participant, nil
}

func (s *ChatService) ListUserConversations(
	ctx context.Context,
	userID int64,
	includeArchived bool,
) ([]models.ConversationSummary, error) {
	rows, err := s.store.Repos().conversations.ListForParticipant(ctx, userID, includeArchived)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		other := models.NewParticipantIdentity(&row.OtherUser)
		other.Presence = s.lookupPresence(ctx, row.OtherUser.ID, row.OtherLastSeenAt)

		summaries = append(summaries, models.ConversationSummary{
			ID:               row.Conversation.ID,
			Subject:          row.Conversation.Subject,
			Project:          row.Project,
			OtherParticipant: other,
			LastMessage:      previewOf(row.LastMessage),
			LastMessageAt:    row.Conversation.LastMessageAt,
			UnreadCount:      row.UnreadCount,
			IsPinned:         row.Participant.IsPinned,
			IsMuted:          row.Participant.IsMuted,
			IsArchived:       row.Participant.IsArchived,
			CreatedAt:        row.Conversation.CreatedAt,
			UpdatedAt:        row.Conversation.UpdatedAt,
		})
	}
	return summaries, nil
}

func (s *ChatService) conversationView(
	ctx context.Context,
	repos chatRepos,
	viewerID int64,
	conversation *models.Conversation,
) (*models.ConversationView, error) {
	otherID := conversation.OtherParty(viewerID)

	users, err := s.users.GetByIDs(ctx, []int64{conversation.PartyAID, conversation.PartyBID})
	if err != nil {
		return nil, err
	}

	viewer, err := repos.participants.Get(ctx, conversation.ID, viewerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	other, err := repos.participants.GetOther(ctx, conversation.ID, viewerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var otherLastSeen *time.Time
	if other != nil {
		otherLastSeen = other.LastSeenAt
	}

	unread, err := repos.participants.UnreadCount(ctx, conversation.ID, viewerID)
	if err != nil {
		return nil, err
	}

	var lastMessage *models.Message
	latest, err := repos.messages.Latest(ctx, conversation.ID)
	switch {
	case err == nil:
		lastMessage = latest
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	var project *models.ProjectRef
	if conversation.ProjectID != nil {
		found, err := s.projects.GetByID(ctx, *conversation.ProjectID)
		switch {
		case err == nil:
			project = &models.ProjectRef{ID: found.ID, Name: found.Name}
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, err
		}
	}

	participants := make([]models.ParticipantIdentity, 0, 2)
	var otherIdentity models.ParticipantIdentity
	for _, id := range []int64{conversation.PartyAID, conversation.PartyBID} {
		identity := models.NewParticipantIdentity(users[id])
		identity.UserID = id
		if id == otherID {
			identity.Presence = s.lookupPresence(ctx, id, otherLastSeen)
			otherIdentity = identity
		}
		participants = append(participants, identity)
	}

	return &models.ConversationView{
		ID:               conversation.ID,
		Subject:          conversation.Subject,
		Project:          project,
		Participants:     participants,
		OtherParticipant: otherIdentity,
		LastMessage:      previewOf(lastMessage),
		LastMessageAt:    conversation.LastMessageAt,
		UnreadCount:      unread,
		IsPinned:         viewer.IsPinned,
		IsMuted:          viewer.IsMuted,
		IsArchived:       viewer.IsArchived,
		CreatedAt:        conversation.CreatedAt,
		UpdatedAt:        conversation.UpdatedAt,
	}, nil
}

// lookupPresence prefers the live presence store and falls back to the
// participant's last activity in the conversation.
func (s *ChatService) lookupPresence(ctx context.Context, userID int64, fallbackLastSeen *time.Time) models.Presence {
	fallback := models.Presence{LastSeenAt: fallbackLastSeen}
	if s.presence == nil {
		return fallback
	}

	presence, err := s.presence.Lookup(ctx, userID)
	if err != nil {
		s.log.Warn("presence lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return fallback
	}
	if presence.LastSeenAt == nil {
		presence.LastSeenAt = fallbackLastSeen
	}
	return presence
}

// dispatch publishes a post-commit event. Failures are logged, never returned.
func (s *ChatService) dispatch(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, event); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", event.Type),
			zap.Int64("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		s.notifier.Notify(event)
	}
}
