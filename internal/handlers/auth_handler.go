package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
)

type userLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthHandler exposes the caller's own identity. Accounts are issued
// elsewhere; this service only trusts the token.
type AuthHandler struct {
	userRepo userLookup
}

func NewAuthHandler(userRepo userLookup) *AuthHandler {
	return &AuthHandler{userRepo: userRepo}
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	role, ok := c.Locals("role").(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	user, err := h.userRepo.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch user"})
	}
	if user.Role != role {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Token role does not match account"})
	}

	return c.JSON(fiber.Map{
		"user":     models.NewParticipantIdentity(user),
		"email":    user.Email,
		"joinedAt": user.CreatedAt,
	})
}
