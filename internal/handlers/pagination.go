package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/kristishqau/billaroo-sub001/internal/services"
)

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseOptionalBool(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

// parseMessageQuery reads page/page_size and the optional before_id +
// before_sent_at keyset cursor. limit is accepted as an alias of page_size.
func parseMessageQuery(c *fiber.Ctx) (services.MessageQuery, error) {
	pageSize := c.Query("page_size")
	if pageSize == "" {
		pageSize = c.Query("limit")
	}
	query := services.MessageQuery{
		Page:     parsePositiveInt(c.Query("page"), 1),
		PageSize: parsePositiveInt(pageSize, services.DefaultMessagePageSize),
	}

	beforeID := strings.TrimSpace(c.Query("before_id"))
	beforeSentAt := strings.TrimSpace(c.Query("before_sent_at"))
	if beforeID == "" && beforeSentAt == "" {
		return query, nil
	}
	if beforeID == "" || beforeSentAt == "" {
		return query, errors.New("before_id and before_sent_at must be provided together")
	}

	id, err := strconv.ParseInt(beforeID, 10, 64)
	if err != nil || id <= 0 {
		return query, errors.New("Invalid before_id")
	}
	sentAt, err := time.Parse(time.RFC3339Nano, beforeSentAt)
	if err != nil {
		return query, errors.New("Invalid before_sent_at")
	}

	query.Before = &models.MessageCursor{SentAt: sentAt, ID: id}
	return query, nil
}
