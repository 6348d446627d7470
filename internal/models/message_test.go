package models

import (
	"testing"
	"time"
)

func TestParseMessageTypeAcceptsCanonicalAndLooseNames(t *testing.T) {
	cases := map[string]MessageType{
		"Text":           MessageTypeText,
		"image":          MessageTypeImage,
		"project_invite": MessageTypeProjectInvite,
		"InvoiceShare":   MessageTypeInvoiceShare,
	}
	for raw, want := range cases {
		got, ok := ParseMessageType(raw)
		if !ok || got != want {
			t.Fatalf("ParseMessageType(%q) = %q, %v", raw, got, ok)
		}
	}
	if _, ok := ParseMessageType("video"); ok {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestBodyHidesDeletedContent(t *testing.T) {
	message := &Message{ID: 1, Type: MessageTypeImage, Content: "", IsDeleted: true}

	switch body := message.Body().(type) {
	case DeletedBody:
		if body.Placeholder() != DeletedImagePlaceholder {
			t.Fatalf("unexpected placeholder %q", body.Placeholder())
		}
	default:
		t.Fatalf("expected deleted body, got %T", body)
	}

	active := &Message{ID: 2, Type: MessageTypeText, Content: "hello"}
	if body, ok := active.Body().(ActiveBody); !ok || body.Content != "hello" {
		t.Fatalf("expected active body with content, got %#v", active.Body())
	}
}

func TestParticipantHasReadComparesCursor(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	participant := &ConversationParticipant{}
	if participant.HasRead(sentAt) {
		t.Fatalf("expected nil cursor to be unread")
	}

	participant.LastReadAt = &sentAt
	if !participant.HasRead(sentAt) {
		t.Fatalf("expected cursor equal to sent_at to count as read")
	}

	earlier := sentAt.Add(-time.Millisecond)
	participant.LastReadAt = &earlier
	if participant.HasRead(sentAt) {
		t.Fatalf("expected earlier cursor to be unread")
	}
}
