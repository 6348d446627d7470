package chatws

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/services"
	"go.uber.org/zap"
)

const presenceTimeout = 2 * time.Second

// Hub fans post-commit events out to every socket of the users involved.
// Frames are hints; clients re-fetch over HTTP.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Event
	done       chan struct{}
	presence   presenceTracker
	log        *zap.Logger
}

type presenceTracker interface {
	MarkOnline(ctx context.Context, userID int64) error
	Refresh(ctx context.Context, userID int64) error
	MarkOffline(ctx context.Context, userID int64) error
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

type chatService interface {
	SendMessage(ctx context.Context, senderID int64, input services.SendMessageInput) (*services.ChatDelivery, error)
	MarkConversationAsRead(ctx context.Context, userID int64, conversationID int64, lastMessageID *int64) error
}

// Message is one outbound frame.
type Message struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	Emoji          string `json:"emoji,omitempty"`
	Content        string `json:"content,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type incomingFrame struct {
	Type             string `json:"type"`
	ConversationID   string `json:"conversation_id"`
	Content          string `json:"content"`
	MessageType      string `json:"message_type"`
	ReplyToMessageID *int64 `json:"reply_to_message_id"`
	LastMessageID    *int64 `json:"last_message_id"`
}

var frameTypes = map[string]string{
	events.TypeConversationStarted: "conversation",
	events.TypeConversationRead:    "read",
	events.TypeMessageSent:         "message",
	events.TypeMessageEdited:       "message_updated",
	events.TypeMessageDeleted:      "message_deleted",
	events.TypeReactionAdded:       "reaction",
	events.TypeReactionRemoved:     "reaction",
}

func NewHub(log *zap.Logger, presence presenceTracker) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, 256),
		done:       make(chan struct{}),
		presence:   presence,
		log:        log,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for userID, set := range h.clients {
				for client := range set {
					client.shutdown()
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.track(client.userID, "online")
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.shutdown()
				h.track(client.userID, "offline")
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.shutdown()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify queues an event for delivery and drops it when the hub is saturated.
func (h *Hub) Notify(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("chat hub queue full, dropping event",
			zap.String("type", event.Type),
			zap.Int64("conversation_id", event.ConversationID),
		)
	}
}

func (h *Hub) deliver(event events.Event) {
	frameType, ok := frameTypes[event.Type]
	if !ok {
		return
	}

	frame := &Message{
		Type:           frameType,
		ConversationID: strconv.FormatInt(event.ConversationID, 10),
		ActorID:        strconv.FormatInt(event.ActorID, 10),
		Emoji:          event.Emoji,
		Timestamp:      formatTimestamp(event.OccurredAt),
	}
	if event.MessageID != 0 {
		frame.MessageID = strconv.FormatInt(event.MessageID, 10)
	}

	encoded, err := encodeMessage(frame)
	if err != nil {
		h.log.Error("chat hub encode message", zap.Error(err))
		return
	}

	h.sendToUser(event.ActorID, encoded)
	for _, recipientID := range event.RecipientIDs {
		if recipientID != event.ActorID {
			h.sendToUser(recipientID, encoded)
		}
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(payload) {
			delete(set, client)
			client.shutdown()
			h.track(userID, "offline")
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) track(userID int64, state string) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()

		var err error
		switch state {
		case "online":
			err = h.presence.MarkOnline(ctx, userID)
		case "offline":
			err = h.presence.MarkOffline(ctx, userID)
		default:
			err = h.presence.Refresh(ctx, userID)
		}
		if err != nil {
			h.log.Warn("presence update failed",
				zap.Int64("user_id", userID),
				zap.String("state", state),
				zap.Error(err),
			)
		}
	}()
}

func encodeMessage(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (c *Client) ReadPump(service chatService) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(context.Background(), service, payload)
		if c.isClosed() {
			return
		}
	}
}

// enqueue reports false when the client is gone or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) handleFrame(ctx context.Context, service chatService, payload []byte) {
	var incoming incomingFrame
	if err := json.Unmarshal(payload, &incoming); err != nil {
		writeError(c, "invalid message payload")
		return
	}

	if incoming.Type == "ping" {
		c.hub.track(c.userID, "refresh")
		return
	}

	conversationID, err := strconv.ParseInt(incoming.ConversationID, 10, 64)
	if err != nil || conversationID <= 0 {
		writeError(c, "invalid conversation id")
		return
	}

	switch incoming.Type {
	case "message":
		_, err = service.SendMessage(ctx, c.userID, services.SendMessageInput{
			ConversationID:   conversationID,
			Content:          incoming.Content,
			Type:             incoming.MessageType,
			ReplyToMessageID: incoming.ReplyToMessageID,
		})
		if err != nil {
			writeError(c, "failed to send message")
		}
	case "mark_read":
		if err := service.MarkConversationAsRead(ctx, c.userID, conversationID, incoming.LastMessageID); err != nil {
			writeError(c, "failed to mark conversation as read")
		}
	default:
		writeError(c, "unsupported message type")
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(Message{
		Type:      "error",
		Content:   message,
		Timestamp: formatTimestamp(time.Now()),
	})
	if err != nil {
		return
	}
	if !client.enqueue(payload) && !client.isClosed() {
		go client.hub.Unregister(client)
	}
}
