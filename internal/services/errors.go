package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrProjectNotFound      = errors.New("project not found")
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrPayloadTooLarge      = errors.New("attachment too large")
	ErrUnsupportedMediaType = errors.New("unsupported attachment type")
	ErrStorageUnavailable   = errors.New("storage service is not configured")
)

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail. It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, field.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newFieldError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Tag: tag, Message: message}}}
}

func formatValidationErrors(err error) error {
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(ve))}
	for _, fe := range ve {
		field := FieldError{Field: fe.Field(), Tag: fe.Tag()}
		switch fe.Tag() {
		case "required":
			field.Message = fmt.Sprintf("%s is required", fe.Field())
		case "gt":
			field.Message = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
		case "max":
			field.Message = fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
		case "nefield":
			field.Message = fmt.Sprintf("%s must differ from %s", fe.Field(), fe.Param())
		default:
			field.Message = fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
		}
		out.Fields = append(out.Fields, field)
	}
	return out
}
