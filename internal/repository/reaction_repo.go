package repository

import (
	"context"

	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type ReactionRepository struct {
	db DBTX
}

func NewReactionRepository(db DBTX) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Add is a no-op when the (message, user, emoji) triple already exists.
func (r *ReactionRepository) Add(ctx context.Context, messageID int64, userID int64, emoji string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, messageID, userID, emoji)
	return err
}

func (r *ReactionRepository) Remove(ctx context.Context, messageID int64, userID int64, emoji string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3
	`, messageID, userID, emoji)
	return err
}

// ListByMessageIDs returns reactions in creation order, keyed by message.
func (r *ReactionRepository) ListByMessageIDs(
	ctx context.Context,
	messageIDs []int64,
) (map[int64][]models.MessageReaction, error) {
	result := make(map[int64][]models.MessageReaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT
			r.id, r.message_id, r.user_id, r.emoji, r.created_at,
			u.id, u.email, u.username, u.first_name, u.last_name, u.avatar_url, u.role, u.created_at, u.updated_at
		FROM message_reactions r
		JOIN users u ON u.id = r.user_id
		WHERE r.message_id = ANY($1)
		ORDER BY r.created_at ASC, r.id ASC
	`
	rows, err := r.db.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var reaction models.MessageReaction
		var user models.User
		if err := rows.Scan(
			&reaction.ID,
			&reaction.MessageID,
			&reaction.UserID,
			&reaction.Emoji,
			&reaction.CreatedAt,
			&user.ID,
			&user.Email,
			&user.Username,
			&user.FirstName,
			&user.LastName,
			&user.AvatarURL,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		reaction.User = &user
		result[reaction.MessageID] = append(result[reaction.MessageID], reaction)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
