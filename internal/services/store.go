package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/kristishqau/billaroo-sub001/internal/repository"
)

type conversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error)
	FindActiveBetween(ctx context.Context, initiatorID int64, otherID int64, projectID *int64) (*models.Conversation, error)
	LockPair(ctx context.Context, userA int64, userB int64) error
	TouchLastMessage(ctx context.Context, conversationID int64, sentAt time.Time) error
	ListForParticipant(ctx context.Context, participantID int64, includeArchived bool) ([]repository.ConversationListRow, error)
}

type participantRepository interface {
	Add(ctx context.Context, conversationID int64, userID int64) error
	Get(ctx context.Context, conversationID int64, userID int64) (*models.ConversationParticipant, error)
	GetOther(ctx context.Context, conversationID int64, userID int64) (*models.ConversationParticipant, error)
	UpdateSettings(ctx context.Context, conversationID int64, userID int64, settings models.ConversationSettings) (*models.ConversationParticipant, error)
	MarkRead(ctx context.Context, conversationID int64, userID int64, upTo *time.Time) (*models.ConversationParticipant, error)
	TouchSeen(ctx context.Context, conversationID int64, userID int64) error
	UnreadCount(ctx context.Context, conversationID int64, userID int64) (int, error)
}

type messageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
	GetByIDs(ctx context.Context, messageIDs []int64) (map[int64]*models.Message, error)
	Latest(ctx context.Context, conversationID int64) (*models.Message, error)
	ListPage(ctx context.Context, conversationID int64, limit int, offset int) ([]models.Message, error)
	ListBefore(ctx context.Context, conversationID int64, cursor models.MessageCursor, limit int) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error)
	SoftDelete(ctx context.Context, messageID int64) (*models.Message, error)
	MarkReadUpTo(ctx context.Context, conversationID int64, readerID int64, upTo time.Time) (int64, error)
}

type reactionRepository interface {
	Add(ctx context.Context, messageID int64, userID int64, emoji string) error
	Remove(ctx context.Context, messageID int64, userID int64, emoji string) error
	ListByMessageIDs(ctx context.Context, messageIDs []int64) (map[int64][]models.MessageReaction, error)
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.User, error)
}

type projectReader interface {
	GetByID(ctx context.Context, id int64) (*models.Project, error)
}

// chatRepos is one set of repositories bound to either the pool or a transaction.
type chatRepos struct {
	conversations conversationRepository
	participants  participantRepository
	messages      messageRepository
	reactions     reactionRepository
}

type chatStore interface {
	Repos() chatRepos
	WithinTx(ctx context.Context, fn func(repos chatRepos) error) error
}

type PostgresChatStore struct {
	db *pgxpool.Pool
}

func NewPostgresChatStore(db *pgxpool.Pool) *PostgresChatStore {
	return &PostgresChatStore{db: db}
}

func reposFor(db repository.DBTX) chatRepos {
	return chatRepos{
		conversations: repository.NewConversationRepository(db),
		participants:  repository.NewParticipantRepository(db),
		messages:      repository.NewMessageRepository(db),
		reactions:     repository.NewReactionRepository(db),
	}
}

func (s *PostgresChatStore) Repos() chatRepos {
	return reposFor(s.db)
}

func (s *PostgresChatStore) WithinTx(ctx context.Context, fn func(repos chatRepos) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(reposFor(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
