package handlers

import (
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/kristishqau/billaroo-sub001/internal/services"
)

type sendMessageRequest struct {
	ConversationID   int64  `json:"conversation_id" form:"conversation_id"`
	Content          string `json:"content" form:"content"`
	Type             string `json:"type" form:"type"`
	ReplyToMessageID *int64 `json:"reply_to_message_id" form:"reply_to_message_id"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// SendMessage accepts JSON for text messages and multipart/form-data when an
// attachment file is included.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	var fileHeader *multipart.FileHeader
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid multipart form"})
		}
		if req, err = sendMessageFromForm(form); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if files := form.File["attachment"]; len(files) > 0 {
			fileHeader = files[0]
		}
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	input := services.SendMessageInput{
		ConversationID:   req.ConversationID,
		Content:          req.Content,
		Type:             req.Type,
		ReplyToMessageID: req.ReplyToMessageID,
	}

	if fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read attachment"})
		}
		defer file.Close()

		input.Attachment = &services.AttachmentUpload{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
			Size:        fileHeader.Size,
			Content:     file,
		}
	}

	delivery, err := h.service.SendMessage(c.Context(), userID, input)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func sendMessageFromForm(form *multipart.Form) (sendMessageRequest, error) {
	value := func(key string) string {
		if values := form.Value[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}

	req := sendMessageRequest{
		Content: value("content"),
		Type:    value("type"),
	}

	conversationID, err := strconv.ParseInt(strings.TrimSpace(value("conversation_id")), 10, 64)
	if err != nil {
		return req, errors.New("Invalid conversation_id")
	}
	req.ConversationID = conversationID

	if raw := strings.TrimSpace(value("reply_to_message_id")); raw != "" {
		replyTo, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, errors.New("Invalid reply_to_message_id")
		}
		req.ReplyToMessageID = &replyTo
	}
	return req, nil
}

func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.EditMessage(c.Context(), userID, messageID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	message, err := h.service.DeleteMessage(c.Context(), userID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) GetAttachment(c *fiber.Ctx) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	url, err := h.service.GetAttachmentURL(c.Context(), userID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"url": url})
}

func (h *ChatHandler) AddReaction(c *fiber.Ctx) error {
	return h.reaction(c, true)
}

func (h *ChatHandler) RemoveReaction(c *fiber.Ctx) error {
	return h.reaction(c, false)
}

func (h *ChatHandler) reaction(c *fiber.Ctx, add bool) error {
	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := parsePathID(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	req := reactionRequest{Emoji: c.Query("emoji")}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	var message *models.MessageView
	if add {
		message, err = h.service.AddReaction(c.Context(), userID, messageID, req.Emoji)
	} else {
		message, err = h.service.RemoveReaction(c.Context(), userID, messageID, req.Emoji)
	}
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}
