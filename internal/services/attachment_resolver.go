package services

import (
	"context"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kristishqau/billaroo-sub001/internal/metrics"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

const MaxAttachmentSize int64 = 10 << 20

var allowedAttachmentTypes = stringSet(
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/heic",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/x-zip-compressed",
	"application/vnd.rar",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
	"application/gzip",
	"application/x-tar",
)

// AttachmentResolver validates attachments and hands their bytes to a StorageService.
// It never looks at the content itself.
type AttachmentResolver struct {
	storage StorageService
	maxSize int64
}

func NewAttachmentResolver(storage StorageService) *AttachmentResolver {
	return &AttachmentResolver{storage: storage, maxSize: MaxAttachmentSize}
}

// Validate checks size and media type and returns the message type the
// attachment implies.
func (r *AttachmentResolver) Validate(upload *AttachmentUpload) (models.MessageType, string, error) {
	if upload == nil || upload.Content == nil {
		return "", "", newFieldError("attachment", "required", "attachment is required")
	}
	if upload.Size <= 0 {
		metrics.AttachmentRejections.WithLabelValues("empty").Inc()
		return "", "", newFieldError("attachment", "required", "attachment is empty")
	}
	if upload.Size > r.maxSize {
		metrics.AttachmentRejections.WithLabelValues("size").Inc()
		return "", "", ErrPayloadTooLarge
	}

	mimeType := normalizeMimeType(upload.ContentType, upload.Filename)
	if _, ok := allowedAttachmentTypes[mimeType]; !ok {
		metrics.AttachmentRejections.WithLabelValues("type").Inc()
		return "", "", ErrUnsupportedMediaType
	}

	if strings.HasPrefix(mimeType, "image/") {
		return models.MessageTypeImage, mimeType, nil
	}
	return models.MessageTypeFile, mimeType, nil
}

// Store uploads a validated attachment under the conversation's folder.
func (r *AttachmentResolver) Store(
	ctx context.Context,
	conversationID int64,
	upload *AttachmentUpload,
	mimeType string,
) (*models.Attachment, error) {
	name := sanitizeFilename(upload.Filename)
	objectPath := "conversations/" + strconv.FormatInt(conversationID, 10) + "/" +
		uuid.NewString() + strings.ToLower(filepath.Ext(name))

	fileURL, err := r.storage.UploadFile(ctx, upload.Content, objectPath, mimeType)
	if err != nil {
		return nil, err
	}

	return &models.Attachment{
		URL:      fileURL,
		Name:     name,
		MimeType: mimeType,
		Size:     upload.Size,
	}, nil
}

func (r *AttachmentResolver) Remove(ctx context.Context, fileURL string) error {
	return r.storage.DeleteFile(ctx, fileURL)
}

func (r *AttachmentResolver) SignedURL(ctx context.Context, fileURL string) (string, error) {
	return r.storage.GetSignedURL(ctx, fileURL)
}

// normalizeMimeType drops parameters and falls back to the file extension when
// the declared type is missing or generic.
func normalizeMimeType(declared, filename string) string {
	mimeType := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			mimeType = parsed
		}
	}
	if mimeType == "image/jpg" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	if len([]rune(name)) > 255 {
		name = string([]rune(name)[:255])
	}
	return name
}

func stringSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
