package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByConversation(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "messaging.events"}

	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := publisher.Publish(context.Background(), Event{
		Type:           TypeMessageSent,
		ConversationID: 42,
		MessageID:      7,
		ActorID:        1,
		RecipientIDs:   []int64{2},
		OccurredAt:     occurred,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, "42", string(msg.Key))
	require.Equal(t, occurred, msg.Time)
	require.Equal(t, "event-type", msg.Headers[0].Key)
	require.Equal(t, TypeMessageSent, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, int64(7), decoded.MessageID)
	require.Equal(t, []int64{2}, decoded.RecipientIDs)

	require.NoError(t, publisher.Close())
	require.True(t, writer.closed)
}
