package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/kristishqau/billaroo-sub001/internal/repository"
)

// memoryDB is an in-memory stand-in for the messaging tables. Its clock plays
// the role of clock_timestamp(): every read advances it by tick.
type memoryDB struct {
	mu sync.Mutex

	clock time.Time
	tick  time.Duration

	nextID int64

	users         map[int64]*models.User
	projects      map[int64]*models.Project
	conversations map[int64]*models.Conversation
	participants  []*models.ConversationParticipant
	messages      map[int64]*models.Message
	reactions     []models.MessageReaction

	failCreateMessage error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		clock:         time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		tick:          time.Second,
		nextID:        1000,
		users:         make(map[int64]*models.User),
		projects:      make(map[int64]*models.Project),
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.Message),
	}
}

func (db *memoryDB) now() time.Time {
	t := db.clock
	db.clock = db.clock.Add(db.tick)
	return t
}

func (db *memoryDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memoryDB) freezeClock() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tick = 0
}

func (db *memoryDB) addUser(id int64, username, first, last, role string) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	user := &models.User{ID: id, Email: username + "@example.com", Username: username, Role: role}
	if first != "" {
		user.FirstName = &first
	}
	if last != "" {
		user.LastName = &last
	}
	db.users[id] = user
	return user
}

func (db *memoryDB) addProject(id int64, name string, freelancerID, clientID int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.projects[id] = &models.Project{ID: id, Name: name, FreelancerID: freelancerID, ClientID: clientID}
}

func (db *memoryDB) participant(conversationID, userID int64) *models.ConversationParticipant {
	for _, p := range db.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (db *memoryDB) sortedMessages(conversationID int64) []*models.Message {
	out := make([]*models.Message, 0)
	for _, m := range db.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (db *memoryDB) unread(conversationID, userID int64) int {
	p := db.participant(conversationID, userID)
	count := 0
	for _, m := range db.messages {
		if m.ConversationID != conversationID || m.SenderID == userID {
			continue
		}
		if p == nil || p.LastReadAt == nil || m.SentAt.After(*p.LastReadAt) {
			count++
		}
	}
	return count
}

func (db *memoryDB) conversationCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.conversations)
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	return &c
}

func copyConversation(c *models.Conversation) *models.Conversation {
	out := *c
	return &out
}

func copyParticipant(p *models.ConversationParticipant) *models.ConversationParticipant {
	out := *p
	return &out
}

type memoryStore struct {
	db *memoryDB
}

func (s memoryStore) Repos() chatRepos {
	return chatRepos{
		conversations: memoryConversations{s.db},
		participants:  memoryParticipants{s.db},
		messages:      memoryMessages{s.db},
		reactions:     memoryReactions{s.db},
	}
}

func (s memoryStore) WithinTx(_ context.Context, fn func(repos chatRepos) error) error {
	return fn(s.Repos())
}

type memoryConversations struct{ db *memoryDB }

func (r memoryConversations) Create(_ context.Context, c *models.Conversation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c.PartyAID > c.PartyBID {
		c.PartyAID, c.PartyBID = c.PartyBID, c.PartyAID
	}
	c.ID = r.db.id()
	c.CreatedAt = r.db.now()
	c.UpdatedAt = c.CreatedAt
	r.db.conversations[c.ID] = copyConversation(c)
	return nil
}

func (r memoryConversations) GetByID(_ context.Context, id int64) (*models.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyConversation(c), nil
}

func activity(c *models.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (r memoryConversations) FindActiveBetween(_ context.Context, initiatorID, otherID int64, projectID *int64) (*models.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, b := initiatorID, otherID
	if a > b {
		a, b = b, a
	}
	var best *models.Conversation
	for _, c := range r.db.conversations {
		if c.PartyAID != a || c.PartyBID != b {
			continue
		}
		p := r.db.participant(c.ID, initiatorID)
		if p == nil || p.IsArchived {
			continue
		}
		if projectID != nil && (c.ProjectID == nil || *c.ProjectID != *projectID) {
			continue
		}
		if best == nil || activity(c).After(activity(best)) ||
			(activity(c).Equal(activity(best)) && c.ID > best.ID) {
			best = c
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return copyConversation(best), nil
}

func (r memoryConversations) LockPair(context.Context, int64, int64) error { return nil }

func (r memoryConversations) TouchLastMessage(_ context.Context, id int64, sentAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.db.conversations[id]
	if c.LastMessageAt == nil || sentAt.After(*c.LastMessageAt) {
		at := sentAt
		c.LastMessageAt = &at
	}
	c.UpdatedAt = r.db.now()
	return nil
}

func (r memoryConversations) ListForParticipant(_ context.Context, userID int64, includeArchived bool) ([]repository.ConversationListRow, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rows := make([]repository.ConversationListRow, 0)
	for _, p := range r.db.participants {
		if p.UserID != userID || (!includeArchived && p.IsArchived) {
			continue
		}
		c := r.db.conversations[p.ConversationID]
		row := repository.ConversationListRow{
			Conversation: *c,
			Participant:  *p,
			UnreadCount:  r.db.unread(c.ID, userID),
		}
		if other, ok := r.db.users[c.OtherParty(userID)]; ok {
			row.OtherUser = *other
		}
		if op := r.db.participant(c.ID, c.OtherParty(userID)); op != nil {
			row.OtherLastSeenAt = op.LastSeenAt
		}
		if c.ProjectID != nil {
			if project, ok := r.db.projects[*c.ProjectID]; ok {
				row.Project = &models.ProjectRef{ID: project.ID, Name: project.Name}
			}
		}
		if ordered := r.db.sortedMessages(c.ID); len(ordered) > 0 {
			row.LastMessage = copyMessage(ordered[0])
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Participant.IsPinned != rows[j].Participant.IsPinned {
			return rows[i].Participant.IsPinned
		}
		ai, aj := activity(&rows[i].Conversation), activity(&rows[j].Conversation)
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return rows[i].Conversation.ID > rows[j].Conversation.ID
	})
	return rows, nil
}

type memoryParticipants struct{ db *memoryDB }

func (r memoryParticipants) Add(_ context.Context, conversationID, userID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.participant(conversationID, userID) != nil {
		return nil
	}
	r.db.participants = append(r.db.participants, &models.ConversationParticipant{
		ID:             r.db.id(),
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       r.db.now(),
	})
	return nil
}

func (r memoryParticipants) Get(_ context.Context, conversationID, userID int64) (*models.ConversationParticipant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.participant(conversationID, userID)
	if p == nil {
		return nil, pgx.ErrNoRows
	}
	return copyParticipant(p), nil
}

func (r memoryParticipants) GetOther(_ context.Context, conversationID, userID int64) (*models.ConversationParticipant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.participants {
		if p.ConversationID == conversationID && p.UserID != userID {
			return copyParticipant(p), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memoryParticipants) UpdateSettings(_ context.Context, conversationID, userID int64, settings models.ConversationSettings) (*models.ConversationParticipant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.participant(conversationID, userID)
	if p == nil {
		return nil, pgx.ErrNoRows
	}
	if settings.IsMuted != nil {
		p.IsMuted = *settings.IsMuted
	}
	if settings.IsArchived != nil {
		p.IsArchived = *settings.IsArchived
	}
	if settings.IsPinned != nil {
		p.IsPinned = *settings.IsPinned
	}
	return copyParticipant(p), nil
}

func (r memoryParticipants) MarkRead(_ context.Context, conversationID, userID int64, upTo *time.Time) (*models.ConversationParticipant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.participant(conversationID, userID)
	if p == nil {
		return nil, pgx.ErrNoRows
	}
	now := r.db.now()
	target := now
	if upTo != nil {
		target = *upTo
	}
	if p.LastReadAt == nil || target.After(*p.LastReadAt) {
		p.LastReadAt = &target
	}
	p.LastSeenAt = &now
	return copyParticipant(p), nil
}

func (r memoryParticipants) TouchSeen(_ context.Context, conversationID, userID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p := r.db.participant(conversationID, userID); p != nil {
		now := r.db.now()
		p.LastSeenAt = &now
	}
	return nil
}

func (r memoryParticipants) UnreadCount(_ context.Context, conversationID, userID int64) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.unread(conversationID, userID), nil
}

type memoryMessages struct{ db *memoryDB }

func (r memoryMessages) Create(_ context.Context, m *models.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failCreateMessage != nil {
		return r.db.failCreateMessage
	}
	m.ID = r.db.id()
	m.SentAt = r.db.now()
	r.db.messages[m.ID] = copyMessage(m)
	return nil
}

func (r memoryMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyMessage(m), nil
}

func (r memoryMessages) GetByIDs(_ context.Context, ids []int64) (map[int64]*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[int64]*models.Message)
	for _, id := range ids {
		if m, ok := r.db.messages[id]; ok {
			out[id] = copyMessage(m)
		}
	}
	return out, nil
}

func (r memoryMessages) Latest(_ context.Context, conversationID int64) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ordered := r.db.sortedMessages(conversationID)
	if len(ordered) == 0 {
		return nil, pgx.ErrNoRows
	}
	return copyMessage(ordered[0]), nil
}

func (r memoryMessages) ListPage(_ context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ordered := r.db.sortedMessages(conversationID)
	out := make([]models.Message, 0)
	for i := offset; i < len(ordered) && len(out) < limit; i++ {
		out = append(out, *copyMessage(ordered[i]))
	}
	return out, nil
}

func (r memoryMessages) ListBefore(_ context.Context, conversationID int64, cursor models.MessageCursor, limit int) ([]models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range r.db.sortedMessages(conversationID) {
		older := m.SentAt.Before(cursor.SentAt) || (m.SentAt.Equal(cursor.SentAt) && m.ID < cursor.ID)
		if !older {
			continue
		}
		out = append(out, *copyMessage(m))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memoryMessages) UpdateContent(_ context.Context, id int64, content string) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok || m.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	now := r.db.now()
	m.Content = content
	m.IsEdited = true
	m.EditedAt = &now
	return copyMessage(m), nil
}

func (r memoryMessages) SoftDelete(_ context.Context, id int64) (*models.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	m.Content = ""
	m.Attachment = nil
	m.IsDeleted = true
	if m.DeletedAt == nil {
		now := r.db.now()
		m.DeletedAt = &now
	}
	return copyMessage(m), nil
}

func (r memoryMessages) MarkReadUpTo(_ context.Context, conversationID, readerID int64, upTo time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, m := range r.db.messages {
		if m.ConversationID != conversationID || m.SenderID == readerID || m.IsRead || m.SentAt.After(upTo) {
			continue
		}
		now := r.db.now()
		m.IsRead = true
		m.ReadAt = &now
		n++
	}
	return n, nil
}

type memoryReactions struct{ db *memoryDB }

func (r memoryReactions) Add(_ context.Context, messageID, userID int64, emoji string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, reaction := range r.db.reactions {
		if reaction.MessageID == messageID && reaction.UserID == userID && reaction.Emoji == emoji {
			return nil
		}
	}
	r.db.reactions = append(r.db.reactions, models.MessageReaction{
		ID:        r.db.id(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: r.db.now(),
	})
	return nil
}

func (r memoryReactions) Remove(_ context.Context, messageID, userID int64, emoji string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.reactions[:0]
	for _, reaction := range r.db.reactions {
		if reaction.MessageID == messageID && reaction.UserID == userID && reaction.Emoji == emoji {
			continue
		}
		kept = append(kept, reaction)
	}
	r.db.reactions = kept
	return nil
}

func (r memoryReactions) ListByMessageIDs(_ context.Context, ids []int64) (map[int64][]models.MessageReaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[int64][]models.MessageReaction)
	for _, reaction := range r.db.reactions {
		if !wanted[reaction.MessageID] {
			continue
		}
		reaction.User = r.db.users[reaction.UserID]
		out[reaction.MessageID] = append(out[reaction.MessageID], reaction)
	}
	return out, nil
}

type memoryUsers struct{ db *memoryDB }

func (r memoryUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r memoryUsers) GetByIDs(_ context.Context, ids []int64) (map[int64]*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[int64]*models.User)
	for _, id := range ids {
		if user, ok := r.db.users[id]; ok {
			copied := *user
			out[id] = &copied
		}
	}
	return out, nil
}

type memoryProjects struct{ db *memoryDB }

func (r memoryProjects) GetByID(_ context.Context, id int64) (*models.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	project, ok := r.db.projects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *project
	return &copied, nil
}

type memoryStorage struct {
	mu         sync.Mutex
	objects    map[string][]byte
	deleted    []string
	failUpload error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (s *memoryStorage) UploadFile(_ context.Context, content io.Reader, objectPath string, _ string) (string, error) {
	if s.failUpload != nil {
		return "", s.failUpload
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := "https://files.test/" + objectPath
	s.objects[url] = data
	return url, nil
}

func (s *memoryStorage) DeleteFile(_ context.Context, fileURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[fileURL]; !ok {
		return errors.New("object not found")
	}
	delete(s.objects, fileURL)
	s.deleted = append(s.deleted, fileURL)
	return nil
}

func (s *memoryStorage) GetSignedURL(_ context.Context, fileURL string) (string, error) {
	return fileURL + "?signature=test", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

const (
	freelancerID  int64 = 1
	clientID      int64 = 2
	outsiderID    int64 = 3
	otherClientID int64 = 4
)

type chatFixture struct {
	db        *memoryDB
	storage   *memoryStorage
	publisher *recordingPublisher
	service   *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := newMemoryDB()
	db.addUser(freelancerID, "ana", "Ana", "Kola", models.RoleFreelancer)
	db.addUser(clientID, "bora", "", "", models.RoleClient)
	db.addUser(outsiderID, "eve", "Eve", "Outsider", models.RoleFreelancer)
	db.addUser(otherClientID, "dren", "", "", models.RoleClient)

	storage := newMemoryStorage()
	publisher := &recordingPublisher{}
	service := NewChatService(
		memoryStore{db},
		memoryUsers{db},
		memoryProjects{db},
		NewAttachmentResolver(storage),
		nil,
		WithPublisher(publisher),
	)
	return &chatFixture{db: db, storage: storage, publisher: publisher, service: service}
}

func upload(name, contentType string, size int) *AttachmentUpload {
	return &AttachmentUpload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(size),
		Content:     bytes.NewReader(make([]byte, size)),
	}
}
