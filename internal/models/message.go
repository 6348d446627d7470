package models

import (
	"strings"
	"time"
)

type MessageType string

const (
	MessageTypeText          MessageType = "Text"
	MessageTypeImage         MessageType = "Image"
	MessageTypeFile          MessageType = "File"
	MessageTypeSystem        MessageType = "System"
	MessageTypeProjectInvite MessageType = "ProjectInvite"
	MessageTypeInvoiceShare  MessageType = "InvoiceShare"
)

var messageTypes = map[string]MessageType{
	"text":          MessageTypeText,
	"image":         MessageTypeImage,
	"file":          MessageTypeFile,
	"system":        MessageTypeSystem,
	"projectinvite": MessageTypeProjectInvite,
	"invoiceshare":  MessageTypeInvoiceShare,
}

// ParseMessageType accepts the canonical names case-insensitively.
func ParseMessageType(raw string) (MessageType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "", "-", "").Replace(key)
	t, ok := messageTypes[key]
	return t, ok
}

const (
	DeletedMessagePlaceholder = "This message was deleted"
	DeletedImagePlaceholder   = "This image was deleted"
	DeletedFilePlaceholder    = "This file was deleted"
)

// DeletedPlaceholder is what every reader sees in place of a deleted message of type t.
func DeletedPlaceholder(t MessageType) string {
	switch t {
	case MessageTypeImage:
		return DeletedImagePlaceholder
	case MessageTypeFile:
		return DeletedFilePlaceholder
	default:
		return DeletedMessagePlaceholder
	}
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(strings.ToLower(a.MimeType), "image/")
}

// Message is the stored row. Readers should go through Body so a deleted
// message can never leak its original content.
type Message struct {
	ID               int64       `json:"id"`
	ConversationID   int64       `json:"conversation_id"`
	SenderID         int64       `json:"sender_id"`
	Content          string      `json:"content"`
	Type             MessageType `json:"type"`
	Attachment       *Attachment `json:"attachment,omitempty"`
	SentAt           time.Time   `json:"sent_at"`
	EditedAt         *time.Time  `json:"edited_at,omitempty"`
	IsEdited         bool        `json:"is_edited"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty"`
	IsDeleted        bool        `json:"is_deleted"`
	IsSystem         bool        `json:"is_system"`
	ReadAt           *time.Time  `json:"read_at,omitempty"`
	IsRead           bool        `json:"is_read"`
	ReplyToMessageID *int64      `json:"reply_to_message_id,omitempty"`
}

// MessageBody is either ActiveBody or DeletedBody.
type MessageBody interface {
	isMessageBody()
}

type ActiveBody struct {
	Content    string
	Attachment *Attachment
}

type DeletedBody struct {
	Kind MessageType
}

func (ActiveBody) isMessageBody()  {}
func (DeletedBody) isMessageBody() {}

func (b DeletedBody) Placeholder() string {
	return DeletedPlaceholder(b.Kind)
}

func (m *Message) Body() MessageBody {
	if m.IsDeleted {
		return DeletedBody{Kind: m.Type}
	}
	return ActiveBody{Content: m.Content, Attachment: m.Attachment}
}

// MessageCursor identifies a position in the (sent_at, id) descending order.
type MessageCursor struct {
	SentAt time.Time `json:"sent_at"`
	ID     int64     `json:"id"`
}

func (m *Message) Cursor() MessageCursor {
	return MessageCursor{SentAt: m.SentAt, ID: m.ID}
}

type MessageStatus string

// Sending and Failed exist only on the client; the server derives Sent or Read.
const (
	MessageStatusSending   MessageStatus = "Sending"
	MessageStatusSent      MessageStatus = "Sent"
	MessageStatusDelivered MessageStatus = "Delivered"
	MessageStatusRead      MessageStatus = "Read"
	MessageStatusFailed    MessageStatus = "Failed"
)

type MessageReaction struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"-"`
}

type ReactionUser struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type ReactionGroup struct {
	Emoji                 string         `json:"emoji"`
	Users                 []ReactionUser `json:"users"`
	Count                 int            `json:"count"`
	HasCurrentUserReacted bool           `json:"has_current_user_reacted"`
}

type ReplyPreview struct {
	ID                int64       `json:"id"`
	SenderID          int64       `json:"sender_id"`
	SenderDisplayName string      `json:"sender_display_name"`
	Content           string      `json:"content"`
	Type              MessageType `json:"type"`
	IsDeleted         bool        `json:"is_deleted"`
	HasAttachment     bool        `json:"has_attachment"`
}

// MessagePreview is the short form used by conversation lists.
type MessagePreview struct {
	ID        int64       `json:"id"`
	SenderID  int64       `json:"sender_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	IsDeleted bool        `json:"is_deleted"`
	SentAt    time.Time   `json:"sent_at"`
}

// MessageView is a message projected for one viewer.
type MessageView struct {
	ID                  int64           `json:"id"`
	ConversationID      int64           `json:"conversation_id"`
	SenderID            int64           `json:"sender_id"`
	Content             string          `json:"content"`
	Type                MessageType     `json:"type"`
	Attachment          *Attachment     `json:"attachment,omitempty"`
	IsImage             bool            `json:"is_image"`
	SentAt              time.Time       `json:"sent_at"`
	EditedAt            *time.Time      `json:"edited_at,omitempty"`
	IsEdited            bool            `json:"is_edited"`
	DeletedAt           *time.Time      `json:"deleted_at,omitempty"`
	IsDeleted           bool            `json:"is_deleted"`
	IsSystem            bool            `json:"is_system"`
	IsRead              bool            `json:"is_read"`
	ReadAt              *time.Time      `json:"read_at,omitempty"`
	IsSentByCurrentUser bool            `json:"is_sent_by_current_user"`
	Status              MessageStatus   `json:"status,omitempty"`
	ReplyToMessageID    *int64          `json:"reply_to_message_id,omitempty"`
	ReplyTo             *ReplyPreview   `json:"reply_to,omitempty"`
	Reactions           []ReactionGroup `json:"reactions"`
}

type MessagePage struct {
	Conversation    *ConversationView `json:"conversation"`
	Messages        []MessageView     `json:"messages"`
	Page            int               `json:"page"`
	PageSize        int               `json:"page_size"`
	HasNextPage     bool              `json:"has_next_page"`
	HasPreviousPage bool              `json:"has_previous_page"`
	NextCursor      *MessageCursor    `json:"next_cursor,omitempty"`
}
