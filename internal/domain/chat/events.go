package chat

import (
	"time"

	"zedflip/internal/domain/listings"
	"zedflip/internal/domain/user"
)

const (
	EventConversationStarted = "chat.conversation_started"
	EventMessageSent         = "chat.message_sent"
)

type ConversationStarted struct {
	ConversationID ConversationID     `json:"conversation_id"`
	ListingID      listings.ListingID `json:"listing_id"`
	InitiatorID    user.ID            `json:"initiator_id"`
	SellerID       user.ID            `json:"seller_id"`
	At             time.Time          `json:"at"`
}

func (e ConversationStarted) EventName() string     { return EventConversationStarted }
func (e ConversationStarted) AggregateID() string   { return string(e.ConversationID) }
func (e ConversationStarted) OccurredAt() time.Time { return e.At }

type MessageSent struct {
	ConversationID ConversationID `json:"conversation_id"`
	MessageID      MessageID      `json:"message_id"`
	SenderID       user.ID        `json:"sender_id"`
	RecipientID    user.ID        `json:"recipient_id"`
	Preview        string         `json:"preview"`
	At             time.Time      `json:"at"`
}

func (e MessageSent) EventName() string     { return EventMessageSent }
func (e MessageSent) AggregateID() string   { return string(e.ConversationID) }
func (e MessageSent) OccurredAt() time.Time { return e.At }
