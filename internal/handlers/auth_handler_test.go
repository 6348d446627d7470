package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/stretchr/testify/require"
)

type stubUserLookup struct {
	users map[int64]*models.User
}

func (s stubUserLookup) GetByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func newMeApp(handler *AuthHandler, userID, role string) *fiber.App {
	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("role", role)
		return c.Next()
	}, handler.Me)
	return app
}

func TestMeReturnsParticipantIdentity(t *testing.T) {
	first, last := "Ana", "Dervishi"
	handler := NewAuthHandler(stubUserLookup{users: map[int64]*models.User{
		7: {ID: 7, Username: "ana.d", FirstName: &first, LastName: &last, Role: models.RoleFreelancer, Email: "ana@example.com"},
	}})

	resp, err := newMeApp(handler, "7", models.RoleFreelancer).Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		User  models.ParticipantIdentity `json:"user"`
		Email string                     `json:"email"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(7), body.User.UserID)
	require.Equal(t, "Ana Dervishi", body.User.DisplayName)
	require.Equal(t, "ana@example.com", body.Email)
}

func TestMeErrors(t *testing.T) {
	handler := NewAuthHandler(stubUserLookup{users: map[int64]*models.User{
		7: {ID: 7, Username: "ana.d", Role: models.RoleFreelancer},
	}})

	cases := []struct {
		name   string
		userID string
		role   string
		status int
	}{
		{"malformed id", "abc", models.RoleClient, http.StatusUnauthorized},
		{"unknown user", "8", models.RoleClient, http.StatusNotFound},
		{"role mismatch", "7", models.RoleClient, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := newMeApp(handler, tc.userID, tc.role).Test(httptest.NewRequest(http.MethodGet, "/me", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
