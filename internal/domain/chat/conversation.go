package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/events"
	"zedflip/internal/domain/user"
)

// MaxContentLength is the upper bound on a message, in characters.
const MaxContentLength = 1000

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationExists   = errors.New("chat: active conversation already exists")
	ErrIDRequired           = errors.New("chat: id is required")
	ErrListingRequired      = errors.New("chat: listing is required")
	ErrParticipantsInvalid  = errors.New("chat: conversation needs exactly two distinct participants")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation about your own listing")
	ErrContentRequired      = errors.New("chat: message content is required")
	ErrContentTooLong       = errors.New("chat: message cannot exceed 1000 characters")
)

type ConversationID string
type MessageID string

// Message is owned by its conversation and has no lookup of its own.
type Message struct {
	ID        MessageID
	Sender    user.ID
	Content   string
	IsRead    bool
	CreatedAt time.Time
}

type Conversation struct {
	ID              ConversationID
	Participants    [2]user.ID
	Listing         listings.ListingID
	Messages        []Message
	LastMessageText string
	LastMessageAt   time.Time
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	events.EventRecorder
}

// ListParams page through conversations for moderation.
type ListParams struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

// Repository persists conversations. Appends and read receipts are targeted
// updates so concurrent writers on the same conversation never overwrite each
// other's messages.
type Repository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	// ForParticipant returns ErrConversationNotFound for missing, inactive and
	// foreign conversations alike.
	ForParticipant(ctx context.Context, id ConversationID, participant user.ID) (*Conversation, error)
	FindActive(ctx context.Context, listing listings.ListingID, pair [2]user.ID) (*Conversation, error)
	// Create returns ErrConversationExists when an active conversation for
	// the same listing and pair is already stored.
	Create(ctx context.Context, conv *Conversation) error
	// AppendMessage pushes msg and moves the summary fields in one atomic step.
	AppendMessage(ctx context.Context, id ConversationID, msg Message) error
	MarkRead(ctx context.Context, id ConversationID, reader user.ID) (int, error)
	ListForUser(ctx context.Context, participant user.ID) ([]*Conversation, error)
	List(ctx context.Context, params ListParams) ([]*Conversation, int, error)
	SetActive(ctx context.Context, id ConversationID, active bool, at time.Time) error
}

type StartParams struct {
	ID        ConversationID
	Listing   listings.ListingID
	Initiator user.ID
	Seller    user.ID
	Now       time.Time
}

// NewConversation opens a conversation between a buyer and the listing's seller.
func NewConversation(params StartParams) (*Conversation, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.Listing)) == "" {
		return nil, ErrListingRequired
	}
	initiator := user.ID(strings.TrimSpace(string(params.Initiator)))
	seller := user.ID(strings.TrimSpace(string(params.Seller)))
	if initiator == "" || seller == "" {
		return nil, ErrParticipantsInvalid
	}
	if initiator == seller {
		return nil, ErrSelfConversation
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	conv := &Conversation{
		ID:            params.ID,
		Participants:  [2]user.ID{initiator, seller},
		Listing:       params.Listing,
		Messages:      []Message{},
		LastMessageAt: now,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	conv.Record(ConversationStarted{
		ConversationID: conv.ID,
		ListingID:      conv.Listing,
		InitiatorID:    initiator,
		SellerID:       seller,
		At:             now,
	})
	return conv, nil
}

// NormalizeContent trims content and enforces the 1..1000 character bound.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrContentRequired
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// AppendMessage validates and adds a message from sender. Non-participants and
// inactive conversations get ErrConversationNotFound.
func (c *Conversation) AppendMessage(id MessageID, sender user.ID, content string, now time.Time) (Message, error) {
	if !c.IsActive || !c.HasParticipant(sender) {
		return Message{}, ErrConversationNotFound
	}
	if strings.TrimSpace(string(id)) == "" {
		return Message{}, ErrIDRequired
	}
	text, err := NormalizeContent(content)
	if err != nil {
		return Message{}, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	msg := Message{
		ID:        id,
		Sender:    sender,
		Content:   text,
		CreatedAt: now.UTC(),
	}
	c.apply(msg)
	c.Record(MessageSent{
		ConversationID: c.ID,
		MessageID:      msg.ID,
		SenderID:       sender,
		RecipientID:    c.OtherParticipant(sender),
		Preview:        preview(text),
		At:             msg.CreatedAt,
	})
	return msg, nil
}

// MarkReadBy flips every unread message not sent by reader. It returns how
// many messages changed; a second call returns zero.
func (c *Conversation) MarkReadBy(reader user.ID) int {
	if !c.HasParticipant(reader) {
		return 0
	}
	changed := 0
	for i := range c.Messages {
		if c.Messages[i].Sender != reader && !c.Messages[i].IsRead {
			c.Messages[i].IsRead = true
			changed++
		}
	}
	return changed
}

// UnreadFor counts messages addressed to participant that are still unread.
func (c *Conversation) UnreadFor(participant user.ID) int {
	if !c.HasParticipant(participant) {
		return 0
	}
	count := 0
	for _, msg := range c.Messages {
		if msg.Sender != participant && !msg.IsRead {
			count++
		}
	}
	return count
}

func (c *Conversation) HasParticipant(id user.ID) bool {
	if id == "" {
		return false
	}
	return c.Participants[0] == id || c.Participants[1] == id
}

// OtherParticipant returns the participant that is not id.
func (c *Conversation) OtherParticipant(id user.ID) user.ID {
	if c.Participants[0] == id {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// SetActive flips the moderation flag. It reports whether anything changed.
func (c *Conversation) SetActive(active bool, now time.Time) bool {
	if c.IsActive == active {
		return false
	}
	c.IsActive = active
	if now.IsZero() {
		now = time.Now()
	}
	c.UpdatedAt = now.UTC()
	return true
}

// PairKey identifies the unordered participant pair; it is what uniqueness of
// active conversations per listing is keyed on.
func PairKey(pair [2]user.ID) string {
	a, b := string(pair[0]), string(pair[1])
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Apply records msg on c exactly as a store does when it persists an append.
// Stores that keep whole documents call it to stay in step with the aggregate.
func (c *Conversation) Apply(msg Message) {
	c.apply(msg)
}

func (c *Conversation) apply(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.LastMessageText = msg.Content
	c.LastMessageAt = msg.CreatedAt
	c.UpdatedAt = msg.CreatedAt
}

// SortByActivity orders conversations most recently active first.
func SortByActivity(convs []*Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// UnreadTotal sums unread messages for participant across active conversations.
func UnreadTotal(convs []*Conversation, participant user.ID) int {
	total := 0
	for _, conv := range convs {
		if conv == nil || !conv.IsActive {
			continue
		}
		total += conv.UnreadFor(participant)
	}
	return total
}

func preview(text string) string {
	const limit = 120
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
