package dto

import (
	"time"

	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// ChatMessage is a single message as clients and socket frames see it.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Participant is the public face of a conversation member.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	City string `json:"city,omitempty"`
}

// ConversationListing summarizes the listing a conversation is about.
type ConversationListing struct {
	ID       string  `json:"id"`
	Title    string  `json:"title,omitempty"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	Image    string  `json:"image,omitempty"`
	Status   string  `json:"status,omitempty"`
}

// Conversation summarizes a conversation from one participant's point of
// view, as shown in the inbox.
type Conversation struct {
	ID              string              `json:"id"`
	Listing         ConversationListing `json:"listing"`
	Participants    []Participant       `json:"participants"`
	LastMessageText string              `json:"lastMessage,omitempty"`
	LastMessageAt   time.Time           `json:"lastMessageAt"`
	UnreadCount     int                 `json:"unreadCount"`
	IsActive        bool                `json:"isActive"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// ConversationDetail is the thread view: the summary plus every message,
// oldest first. Messages is never omitted, a fresh thread renders [].
type ConversationDetail struct {
	Conversation
	Messages []ChatMessage `json:"messages"`
}

type StartConversationResult struct {
	Conversation ConversationDetail `json:"conversation"`
	Created      bool         `json:"created"`
	Message      *ChatMessage `json:"message,omitempty"`
}

type UnreadCount struct {
	UnreadCount int `json:"unreadCount"`
}

type MarkReadResult struct {
	ConversationID string `json:"conversationId"`
	Marked         int    `json:"marked"`
}

// ConversationDirectory carries what a conversation view needs beyond the
// aggregate: participant profiles and listing summaries, keyed by id.
type ConversationDirectory struct {
	Users    map[domainuser.ID]*domainuser.User
	Listings map[domainlistings.ListingID]*domainlistings.Listing
}

func MapChatMessage(convID domainchat.ConversationID, msg domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(convID),
		SenderID:       string(msg.Sender),
		Content:        msg.Content,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
}

// MapConversation renders the summary of conv for viewer.
func MapConversation(conv *domainchat.Conversation, viewer domainuser.ID, dir ConversationDirectory) Conversation {
	if conv == nil {
		return Conversation{}
	}
	out := Conversation{
		ID:              string(conv.ID),
		Listing:         ConversationListing{ID: string(conv.Listing)},
		Participants:    make([]Participant, 0, len(conv.Participants)),
		LastMessageText: conv.LastMessageText,
		LastMessageAt:   conv.LastMessageAt,
		UnreadCount:     conv.UnreadFor(viewer),
		IsActive:        conv.IsActive,
		CreatedAt:       conv.CreatedAt,
		UpdatedAt:       conv.UpdatedAt,
	}
	for _, id := range conv.Participants {
		p := Participant{ID: string(id)}
		if u := dir.Users[id]; u != nil {
			p.Name = u.Name
			p.City = u.City
		}
		out.Participants = append(out.Participants, p)
	}
	if l := dir.Listings[conv.Listing]; l != nil {
		out.Listing.Title = l.Title
		out.Listing.Price = l.Price.Major()
		out.Listing.Currency = l.Price.Currency
		out.Listing.Status = string(l.Status)
		if len(l.Images) > 0 {
			out.Listing.Image = l.Images[0]
		}
	}
	return out
}

// MapConversationDetail renders conv with its messages for viewer.
func MapConversationDetail(conv *domainchat.Conversation, viewer domainuser.ID, dir ConversationDirectory) ConversationDetail {
	out := ConversationDetail{
		Conversation: MapConversation(conv, viewer, dir),
		Messages:     []ChatMessage{},
	}
	if conv == nil {
		return out
	}
	for _, msg := range conv.Messages {
		out.Messages = append(out.Messages, MapChatMessage(conv.ID, msg))
	}
	return out
}
