package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// ConversationListRow is one inbox entry joined with everything the summary needs.
type ConversationListRow struct {
	Conversation models.Conversation
	Participant  models.ConversationParticipant
	OtherUser    models.User
	// OtherLastSeenAt is nil until the other participant has opened the conversation.
	OtherLastSeenAt *time.Time
	Project         *models.ProjectRef
	LastMessage     *models.Message
	UnreadCount     int
}

const conversationColumns = `c.id, c.party_a_id, c.party_b_id, c.project_id, c.subject, c.created_at, c.updated_at, c.last_message_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.PartyAID,
		&conversation.PartyBID,
		&conversation.ProjectID,
		&conversation.Subject,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Create inserts the conversation; the pair is stored with the smaller id first.
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	if conversation.PartyAID > conversation.PartyBID {
		conversation.PartyAID, conversation.PartyBID = conversation.PartyBID, conversation.PartyAID
	}

	query := `
		INSERT INTO conversations (party_a_id, party_b_id, project_id, subject)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at, last_message_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		conversation.PartyAID,
		conversation.PartyBID,
		conversation.ProjectID,
		conversation.Subject,
	).Scan(
		&conversation.ID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
		&conversation.LastMessageAt,
	)
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.id = $1
	`
	return scanConversation(r.db.QueryRow(ctx, query, conversationID))
}

// FindActiveBetween returns the most recent conversation for the unordered pair that
// the initiator has not archived. A nil projectID matches any project scope.
func (r *ConversationRepository) FindActiveBetween(
	ctx context.Context,
	initiatorID int64,
	otherID int64,
	projectID *int64,
) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_participants p
		  ON p.conversation_id = c.id
		 AND p.user_id = $1
		WHERE c.party_a_id = LEAST($1::bigint, $2::bigint)
		  AND c.party_b_id = GREATEST($1::bigint, $2::bigint)
		  AND p.is_archived = FALSE
		  AND ($3::bigint IS NULL OR c.project_id = $3::bigint)
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
		LIMIT 1
	`
	return scanConversation(r.db.QueryRow(ctx, query, initiatorID, otherID, projectID))
}

// LockPair serializes conversation creation for one unordered pair until the
// surrounding transaction ends.
func (r *ConversationRepository) LockPair(ctx context.Context, userA int64, userB int64) error {
	if userA > userB {
		userA, userB = userB, userA
	}
	_, err := r.db.Exec(
		ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))",
		fmt.Sprintf("conversation:%d:%d", userA, userB),
	)
	return err
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, conversationID int64, sentAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
		    updated_at = clock_timestamp()
		WHERE id = $1
	`, conversationID, sentAt)
	return err
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
	includeArchived bool,
) ([]ConversationListRow, error) {
	query := `
		SELECT
			` + conversationColumns + `,
			p.id,
			p.conversation_id,
			p.user_id,
			p.joined_at,
			p.last_read_at,
			p.last_seen_at,
			p.is_muted,
			p.is_archived,
			p.is_pinned,
			p.has_left,
			u.id,
			u.email,
			u.username,
			u.first_name,
			u.last_name,
			u.avatar_url,
			u.role,
			u.created_at,
			u.updated_at,
			op.last_seen_at,
			pr.id,
			pr.name,
			lm.id,
			lm.sender_id,
			lm.content,
			lm.type,
			lm.is_deleted,
			lm.is_system,
			lm.sent_at,
			COALESCE(uc.unread_count, 0)
		FROM conversation_participants p
		JOIN conversations c ON c.id = p.conversation_id
		JOIN users u
		  ON u.id = CASE WHEN c.party_a_id = p.user_id THEN c.party_b_id ELSE c.party_a_id END
		LEFT JOIN conversation_participants op
		  ON op.conversation_id = c.id
		 AND op.user_id = u.id
		LEFT JOIN projects pr ON pr.id = c.project_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, type, is_deleted, is_system, sent_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY sent_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND sender_id <> p.user_id
			  AND (p.last_read_at IS NULL OR sent_at > p.last_read_at)
		) uc ON TRUE
		WHERE p.user_id = $1
		  AND ($2::boolean OR p.is_archived = FALSE)
		ORDER BY p.is_pinned DESC, COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]ConversationListRow, 0)
	for rows.Next() {
		var row ConversationListRow
		var projectID sql.NullInt64
		var projectName sql.NullString
		var messageID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageContent sql.NullString
		var messageType sql.NullString
		var messageIsDeleted sql.NullBool
		var messageIsSystem sql.NullBool
		var messageSentAt sql.NullTime

		conversation := &row.Conversation
		participant := &row.Participant
		other := &row.OtherUser
		if err := rows.Scan(
			&conversation.ID,
			&conversation.PartyAID,
			&conversation.PartyBID,
			&conversation.ProjectID,
			&conversation.Subject,
			&conversation.CreatedAt,
			&conversation.UpdatedAt,
			&conversation.LastMessageAt,
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
			&other.ID,
			&other.Email,
			&other.Username,
			&other.FirstName,
			&other.LastName,
			&other.AvatarURL,
			&other.Role,
			&other.CreatedAt,
			&other.UpdatedAt,
			&row.OtherLastSeenAt,
			&projectID,
			&projectName,
			&messageID,
			&messageSenderID,
			&messageContent,
			&messageType,
			&messageIsDeleted,
			&messageIsSystem,
			&messageSentAt,
			&row.UnreadCount,
		); err != nil {
			return nil, err
		}

		if projectID.Valid {
			row.Project = &models.ProjectRef{ID: projectID.Int64, Name: projectName.String}
		}
		if messageID.Valid {
			row.LastMessage = &models.Message{
				ID:             messageID.Int64,
				ConversationID: conversation.ID,
				SenderID:       messageSenderID.Int64,
				Content:        messageContent.String,
				Type:           models.MessageType(messageType.String),
				IsDeleted:      messageIsDeleted.Bool,
				IsSystem:       messageIsSystem.Bool,
				SentAt:         messageSentAt.Time,
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
