package services

import (
	"context"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/kristishqau/billaroo-sub001/internal/models"
	"github.com/stretchr/testify/require"
)

func messageIDs(views []models.MessageView) []int64 {
	ids := make([]int64, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.ID)
	}
	return ids
}

func TestCursorPagingHandlesIdenticalTimestamps(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "first")

	f.db.freezeClock()
	for i := 0; i < 6; i++ {
		send(t, f, clientID, conversation.ID, "burst "+strconv.Itoa(i))
	}

	seen := make(map[int64]bool)
	var all []int64
	query := MessageQuery{PageSize: 3}
	for pages := 0; pages < 5; pages++ {
		page, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, query)
		require.NoError(t, err)

		ids := messageIDs(page.Messages)
		for i := 1; i < len(ids); i++ {
			require.Less(t, ids[i-1], ids[i], "window is oldest first")
		}
		for _, id := range ids {
			require.False(t, seen[id], "message %d returned twice", id)
			seen[id] = true
		}
		all = append(append([]int64{}, ids...), all...)

		if !page.HasNextPage {
			require.Nil(t, page.NextCursor)
			break
		}
		require.NotNil(t, page.NextCursor)
		require.Equal(t, ids[0], page.NextCursor.ID)
		query = MessageQuery{PageSize: 3, Before: page.NextCursor}
	}

	require.Len(t, all, 7)
	require.Equal(t, conversation.LastMessage.ID, all[0])
}

func TestCursorPagingIsStableUnderNewMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "m1")
	for i := 2; i <= 5; i++ {
		send(t, f, clientID, conversation.ID, "m"+strconv.Itoa(i))
	}

	first, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, "m4", first.Messages[0].Content)
	require.Equal(t, "m5", first.Messages[1].Content)
	require.False(t, first.HasPreviousPage)

	for i := 6; i <= 8; i++ {
		send(t, f, clientID, conversation.ID, "m"+strconv.Itoa(i))
	}

	older, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{
		PageSize: 2,
		Before:   first.NextCursor,
	})
	require.NoError(t, err)
	require.Equal(t, "m2", older.Messages[0].Content)
	require.Equal(t, "m3", older.Messages[1].Content)
	require.True(t, older.HasNextPage)
	require.True(t, older.HasPreviousPage)

	offset, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, "m5", offset.Messages[0].Content, "offset pages shift when new messages arrive")
	require.Equal(t, 2, offset.Page)
	require.True(t, offset.HasPreviousPage)
}

func TestOnlyResetFetchAdvancesReadCursor(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "one")
	send(t, f, freelancerID, conversation.ID, "two")
	send(t, f, freelancerID, conversation.ID, "three")

	unread := func() int {
		t.Helper()
		count, err := f.service.UnreadCount(ctx, clientID, conversation.ID)
		require.NoError(t, err)
		return count
	}
	require.Equal(t, 3, unread())

	page, err := f.service.GetConversationMessages(ctx, clientID, conversation.ID, MessageQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, 3, unread())

	cursor := models.MessageCursor{SentAt: conversation.CreatedAt.Add(24 * time.Hour), ID: 1 << 40}
	_, err = f.service.GetConversationMessages(ctx, clientID, conversation.ID, MessageQuery{Before: &cursor})
	require.NoError(t, err)
	require.Equal(t, 3, unread())

	participant, err := memoryParticipants{f.db}.Get(ctx, conversation.ID, clientID)
	require.NoError(t, err)
	require.Nil(t, participant.LastReadAt)
	require.NotNil(t, participant.LastSeenAt)

	_, err = f.service.GetConversationMessages(ctx, clientID, conversation.ID, MessageQuery{})
	require.NoError(t, err)
	require.Equal(t, 0, unread())
}

func TestReadCursorNeverMovesBackwards(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "one")
	send(t, f, freelancerID, conversation.ID, "two")

	require.NoError(t, f.service.MarkConversationAsRead(ctx, clientID, conversation.ID, nil))
	before, err := memoryParticipants{f.db}.Get(ctx, conversation.ID, clientID)
	require.NoError(t, err)
	require.NotNil(t, before.LastReadAt)

	require.NoError(t, f.service.MarkConversationAsRead(ctx, clientID, conversation.ID, int64Ptr(conversation.LastMessage.ID)))
	after, err := memoryParticipants{f.db}.Get(ctx, conversation.ID, clientID)
	require.NoError(t, err)
	require.Equal(t, *before.LastReadAt, *after.LastReadAt)

	count, err := f.service.UnreadCount(ctx, clientID, conversation.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestMarkConversationAsReadUpToMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "one")
	second := send(t, f, freelancerID, conversation.ID, "two")
	send(t, f, freelancerID, conversation.ID, "three")

	require.NoError(t, f.service.MarkConversationAsRead(ctx, clientID, conversation.ID, int64Ptr(second.ID)))
	count, err := f.service.UnreadCount(ctx, clientID, conversation.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	err = f.service.MarkConversationAsRead(ctx, clientID, conversation.ID, int64Ptr(987654))
	require.ErrorIs(t, err, ErrMessageNotFound)

	other, err := f.service.StartConversation(ctx, outsiderID, StartConversationInput{
		ParticipantID:  clientID,
		InitialMessage: "elsewhere",
	})
	require.NoError(t, err)
	err = f.service.MarkConversationAsRead(ctx, clientID, conversation.ID, int64Ptr(other.LastMessage.ID))
	require.ErrorIs(t, err, ErrInvalidOperation)

	err = f.service.MarkConversationAsRead(ctx, outsiderID, conversation.ID, nil)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSenderStatusMovesFromSentToRead(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "are you there?")

	page, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{})
	require.NoError(t, err)
	mine := page.Messages[0]
	require.True(t, mine.IsSentByCurrentUser)
	require.Equal(t, models.MessageStatusSent, mine.Status)
	require.False(t, mine.IsRead)
	require.Nil(t, mine.ReadAt)

	page, err = f.service.GetConversationMessages(ctx, clientID, conversation.ID, MessageQuery{})
	require.NoError(t, err)
	theirs := page.Messages[0]
	require.False(t, theirs.IsSentByCurrentUser)
	require.Empty(t, theirs.Status)
	require.True(t, theirs.IsRead)

	page, err = f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{})
	require.NoError(t, err)
	mine = page.Messages[0]
	require.Equal(t, models.MessageStatusRead, mine.Status)
	require.True(t, mine.IsRead)
	require.NotNil(t, mine.ReadAt)
	require.Equal(t, 0, page.Conversation.UnreadCount)
}

func TestGetConversationMessagesNormalizesPaging(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	conversation := startConversation(t, f, "hello")

	page, err := f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{Page: -4, PageSize: 5000})
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, MaxMessagePageSize, page.PageSize)

	page, err = f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{})
	require.NoError(t, err)
	require.Equal(t, DefaultMessagePageSize, page.PageSize)
	require.NotNil(t, page.Conversation)
	require.Equal(t, conversation.ID, page.Conversation.ID)

	page, err = f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{Page: 9})
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.False(t, page.HasNextPage)

	_, err = f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{Page: math.MaxInt64, PageSize: 100})
	require.ErrorIs(t, err, ErrInvalidInput)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "page", validationErr.Fields[0].Field)

	page, err = f.service.GetConversationMessages(ctx, freelancerID, conversation.ID, MessageQuery{Page: MaxMessagePage, PageSize: MaxMessagePageSize})
	require.NoError(t, err)
	require.Empty(t, page.Messages)

	_, err = f.service.GetConversationMessages(ctx, outsiderID, conversation.ID, MessageQuery{})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.service.GetConversationMessages(ctx, freelancerID, 424242, MessageQuery{})
	require.ErrorIs(t, err, ErrConversationNotFound)
}
