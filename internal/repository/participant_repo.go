package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type ParticipantRepository struct {
	db DBTX
}

func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, conversation_id, user_id, joined_at, last_read_at, last_seen_at, is_muted, is_archived, is_pinned, has_left`

func scanParticipant(row pgx.Row) (*models.ConversationParticipant, error) {
	var participant models.ConversationParticipant
	err := row.Scan(
		&participant.ID,
		&participant.ConversationID,
		&participant.UserID,
		&participant.JoinedAt,
		&participant.LastReadAt,
		&participant.LastSeenAt,
		&participant.IsMuted,
		&participant.IsArchived,
		&participant.IsPinned,
		&participant.HasLeft,
	)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *ParticipantRepository) Add(ctx context.Context, conversationID int64, userID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, conversationID, userID)
	return err
}

func (r *ParticipantRepository) Get(
	ctx context.Context,
	conversationID int64,
	userID int64,
) (*models.ConversationParticipant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`
	return scanParticipant(r.db.QueryRow(ctx, query, conversationID, userID))
}

// GetOther returns the participant row of whoever is not userID.
func (r *ParticipantRepository) GetOther(
	ctx context.Context,
	conversationID int64,
	userID int64,
) (*models.ConversationParticipant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM conversation_participants
		WHERE conversation_id = $1 AND user_id <> $2
		LIMIT 1
	`
	return scanParticipant(r.db.QueryRow(ctx, query, conversationID, userID))
}

func (r *ParticipantRepository) UpdateSettings(
	ctx context.Context,
	conversationID int64,
	userID int64,
	settings models.ConversationSettings,
) (*models.ConversationParticipant, error) {
	query := `
		UPDATE conversation_participants
		SET is_muted = COALESCE($3, is_muted),
		    is_archived = COALESCE($4, is_archived),
		    is_pinned = COALESCE($5, is_pinned)
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING ` + participantColumns
	return scanParticipant(r.db.QueryRow(
		ctx,
		query,
		conversationID,
		userID,
		settings.IsMuted,
		settings.IsArchived,
		settings.IsPinned,
	))
}

// MarkRead moves the read cursor forward to upTo, or to the database clock when
// upTo is nil. The cursor never moves backwards.
func (r *ParticipantRepository) MarkRead(
	ctx context.Context,
	conversationID int64,
	userID int64,
	upTo *time.Time,
) (*models.ConversationParticipant, error) {
	query := `
		UPDATE conversation_participants
		SET last_read_at = GREATEST(
		        COALESCE(last_read_at, '-infinity'::timestamptz),
		        COALESCE($3::timestamptz, clock_timestamp())
		    ),
		    last_seen_at = clock_timestamp()
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING ` + participantColumns
	return scanParticipant(r.db.QueryRow(ctx, query, conversationID, userID, upTo))
}

func (r *ParticipantRepository) TouchSeen(ctx context.Context, conversationID int64, userID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversation_participants
		SET last_seen_at = clock_timestamp()
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	return err
}

// UnreadCount counts messages from the other party sent after the read cursor.
// Deleted messages still count.
func (r *ParticipantRepository) UnreadCount(ctx context.Context, conversationID int64, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id
		 AND p.user_id = $2
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND (p.last_read_at IS NULL OR m.sent_at > p.last_read_at)
	`

	var count int
	if err := r.db.QueryRow(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
