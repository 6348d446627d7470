package services

import (
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func validateInput(input any) error {
	return formatValidationErrors(validate.Struct(input))
}

type StartConversationInput struct {
	ParticipantID  int64   `json:"participant_id" validate:"required,gt=0"`
	InitialMessage string  `json:"initial_message" validate:"required,max=5000"`
	Subject        *string `json:"subject" validate:"omitempty,max=200"`
	ProjectID      *int64  `json:"project_id" validate:"omitempty,gt=0"`
}

// AttachmentUpload is an attachment as received from the transport, before storage.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type SendMessageInput struct {
	ConversationID   int64             `json:"conversation_id" validate:"required,gt=0"`
	Content          string            `json:"content" validate:"max=5000"`
	Type             string            `json:"type"`
	ReplyToMessageID *int64            `json:"reply_to_message_id" validate:"omitempty,gt=0"`
	Attachment       *AttachmentUpload `json:"-"`
}

type editMessageInput struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type reactionInput struct {
	Emoji string `json:"emoji" validate:"required,max=10"`
}

// MessageQuery selects a window of a conversation. Before, when set, takes
// precedence over Page for the data window.
type MessageQuery struct {
	Page     int
	PageSize int
	Before   *models.MessageCursor
}

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
	// MaxMessagePage keeps the row offset well inside int64.
	MaxMessagePage = 100000
)

func (q MessageQuery) normalized() MessageQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultMessagePageSize
	}
	if q.PageSize > MaxMessagePageSize {
		q.PageSize = MaxMessagePageSize
	}
	return q
}

// isReset reports whether this fetch shows the newest messages.
func (q MessageQuery) isReset() bool {
	return q.Page == 1 && q.Before == nil
}
