package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `
	id, conversation_id, sender_id, content, type,
	attachment_url, attachment_name, attachment_mime_type, attachment_size,
	sent_at, edited_at, is_edited, deleted_at, is_deleted, is_system,
	read_at, is_read, reply_to_message_id`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	var attachmentURL *string
	var attachmentName *string
	var attachmentMimeType *string
	var attachmentSize *int64

	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Content,
		&message.Type,
		&attachmentURL,
		&attachmentName,
		&attachmentMimeType,
		&attachmentSize,
		&message.SentAt,
		&message.EditedAt,
		&message.IsEdited,
		&message.DeletedAt,
		&message.IsDeleted,
		&message.IsSystem,
		&message.ReadAt,
		&message.IsRead,
		&message.ReplyToMessageID,
	)
	if err != nil {
		return nil, err
	}

	if attachmentURL != nil {
		message.Attachment = &models.Attachment{URL: *attachmentURL}
		if attachmentName != nil {
			message.Attachment.Name = *attachmentName
		}
		if attachmentMimeType != nil {
			message.Attachment.MimeType = *attachmentMimeType
		}
		if attachmentSize != nil {
			message.Attachment.Size = *attachmentSize
		}
	}

	return &message, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// Create inserts the message; sent_at comes from the database clock.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	var attachmentURL, attachmentName, attachmentMimeType *string
	var attachmentSize *int64
	if message.Attachment != nil {
		attachmentURL = &message.Attachment.URL
		attachmentName = &message.Attachment.Name
		attachmentMimeType = &message.Attachment.MimeType
		attachmentSize = &message.Attachment.Size
	}

	query := `
		INSERT INTO messages (
			conversation_id, sender_id, content, type,
			attachment_url, attachment_name, attachment_mime_type, attachment_size,
			is_system, reply_to_message_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + messageColumns

	created, err := scanMessage(r.db.QueryRow(
		ctx,
		query,
		message.ConversationID,
		message.SenderID,
		message.Content,
		message.Type,
		attachmentURL,
		attachmentName,
		attachmentMimeType,
		attachmentSize,
		message.IsSystem,
		message.ReplyToMessageID,
	))
	if err != nil {
		return err
	}
	*message = *created
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return scanMessage(r.db.QueryRow(ctx, query, messageID))
}

func (r *MessageRepository) GetByIDs(ctx context.Context, messageIDs []int64) (map[int64]*models.Message, error) {
	result := make(map[int64]*models.Message, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, messageIDs)
	if err != nil {
		return nil, err
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		result[messages[i].ID] = &messages[i]
	}
	return result, nil
}

// Latest returns the newest message of the conversation or pgx.ErrNoRows.
func (r *MessageRepository) Latest(ctx context.Context, conversationID int64) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT 1
	`
	return scanMessage(r.db.QueryRow(ctx, query, conversationID))
}

// ListPage returns newest-first messages windowed by offset.
func (r *MessageRepository) ListPage(
	ctx context.Context,
	conversationID int64,
	limit int,
	offset int,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListBefore returns newest-first messages strictly older than cursor.
func (r *MessageRepository) ListBefore(
	ctx context.Context,
	conversationID int64,
	cursor models.MessageCursor,
	limit int,
) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND (sent_at, id) < ($2, $3)
		ORDER BY sent_at DESC, id DESC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, conversationID, cursor.SentAt, cursor.ID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *MessageRepository) UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2,
		    is_edited = TRUE,
		    edited_at = clock_timestamp()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, messageID, content))
}

// SoftDelete clears content and attachment metadata but keeps the row and its type.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = '',
		    attachment_url = NULL,
		    attachment_name = NULL,
		    attachment_mime_type = NULL,
		    attachment_size = NULL,
		    is_deleted = TRUE,
		    deleted_at = COALESCE(deleted_at, clock_timestamp())
		WHERE id = $1
		RETURNING ` + messageColumns
	return scanMessage(r.db.QueryRow(ctx, query, messageID))
}

// MarkReadUpTo stamps the convenience read flag on every message the reader
// received up to upTo.
func (r *MessageRepository) MarkReadUpTo(
	ctx context.Context,
	conversationID int64,
	readerID int64,
	upTo time.Time,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE,
		    read_at = clock_timestamp()
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND sent_at <= $3
		  AND is_read = FALSE
	`, conversationID, readerID, upTo)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
