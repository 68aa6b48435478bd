package notify

import (
	"time"
	"unicode/utf8"
)

const (
	EventMessageReceived      = "MESSAGE_RECEIVED"
	RoutingKeyMessageReceived = "notification.message.received"

	previewRunes = 50
)

// Message is a freshly persisted chat message as handed over by the REST
// layer. Exactly one of ConversationID and GroupID is set. GroupID is the
// internal id used for the membership lookup; GroupExternalID is what
// clients join the live channel with.
type Message struct {
	ID                 string `json:"id"`
	SenderID           string `json:"senderId"`
	SenderFallbackName string `json:"senderFallbackName,omitempty"`
	ConversationID     string `json:"conversationId,omitempty"`
	GroupID            string `json:"groupId,omitempty"`
	GroupExternalID    string `json:"groupExternalId,omitempty"`
	Content            string `json:"content"`
	// Payload is the full message representation pushed live as new_message.
	// The message itself is used when it is nil.
	Payload any `json:"payload,omitempty"`
}

type Profile struct {
	DisplayName string
	AvatarURL   string
}

// OutboundEvent is one recipient's durable notification. Built once per
// recipient and never modified afterwards.
type OutboundEvent struct {
	EventID           string    `json:"eventId"`
	MessageID         string    `json:"messageId"`
	SenderUserID      string    `json:"senderUserId"`
	RecipientUserID   string    `json:"recipientUserId"`
	ConversationID    *string   `json:"conversationId"`
	GroupID           *string   `json:"groupId"`
	Preview           string    `json:"preview"`
	SenderDisplayName string    `json:"senderDisplayName"`
	SenderAvatarURL   string    `json:"senderAvatarUrl"`
	RoutingKey        string    `json:"routingKey"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Preview cuts content to its first 50 characters.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	r := []rune(content)
	return string(r[:previewRunes])
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
