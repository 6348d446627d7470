package models

import "time"

// Conversation is a two-party thread. PartyAID is always the smaller user id so
// an unordered pair has exactly one representation.
type Conversation struct {
	ID            int64      `json:"id"`
	PartyAID      int64      `json:"party_a_id"`
	PartyBID      int64      `json:"party_b_id"`
	ProjectID     *int64     `json:"project_id,omitempty"`
	Subject       *string    `json:"subject,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c != nil && (c.PartyAID == userID || c.PartyBID == userID)
}

// OtherParty returns the participant that is not userID.
func (c *Conversation) OtherParty(userID int64) int64 {
	if c.PartyAID == userID {
		return c.PartyBID
	}
	return c.PartyAID
}

// ConversationParticipant is the authoritative per-user state of a conversation:
// read cursor and visibility flags live here and nowhere else.
type ConversationParticipant struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	IsMuted        bool       `json:"is_muted"`
	IsArchived     bool       `json:"is_archived"`
	IsPinned       bool       `json:"is_pinned"`
	HasLeft        bool       `json:"has_left"`
}

// HasRead reports whether the participant's read cursor has reached sentAt.
func (p *ConversationParticipant) HasRead(sentAt time.Time) bool {
	return p != nil && p.LastReadAt != nil && !p.LastReadAt.Before(sentAt)
}

// ConversationSettings is a partial update; nil fields are left untouched.
type ConversationSettings struct {
	IsMuted    *bool `json:"is_muted"`
	IsArchived *bool `json:"is_archived"`
	IsPinned   *bool `json:"is_pinned"`
}

func (s ConversationSettings) IsEmpty() bool {
	return s.IsMuted == nil && s.IsArchived == nil && s.IsPinned == nil
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	ID               int64               `json:"id"`
	Subject          *string             `json:"subject,omitempty"`
	Project          *ProjectRef         `json:"project,omitempty"`
	OtherParticipant ParticipantIdentity `json:"other_participant"`
	LastMessage      *MessagePreview     `json:"last_message,omitempty"`
	LastMessageAt    *time.Time          `json:"last_message_at,omitempty"`
	UnreadCount      int                 `json:"unread_count"`
	IsPinned         bool                `json:"is_pinned"`
	IsMuted          bool                `json:"is_muted"`
	IsArchived       bool                `json:"is_archived"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// ConversationView is a single conversation as seen by one of its participants.
type ConversationView struct {
	ID               int64                 `json:"id"`
	Subject          *string               `json:"subject,omitempty"`
	Project          *ProjectRef           `json:"project,omitempty"`
	Participants     []ParticipantIdentity `json:"participants"`
	OtherParticipant ParticipantIdentity   `json:"other_participant"`
	LastMessage      *MessagePreview       `json:"last_message,omitempty"`
	LastMessageAt    *time.Time            `json:"last_message_at,omitempty"`
	UnreadCount      int                   `json:"unread_count"`
	IsPinned         bool                  `json:"is_pinned"`
	IsMuted          bool                  `json:"is_muted"`
	IsArchived       bool                  `json:"is_archived"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}
