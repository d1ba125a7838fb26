package memory

import (
	"context"
	"sync"
	"time"

	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// ConversationRepository keeps conversations with their embedded messages.
// Every mutation happens under one lock, so an append and its summary update
// are never observed apart.
type ConversationRepository struct {
	mu     sync.RWMutex
	items  map[domainchat.ConversationID]*domainchat.Conversation
	active map[string]domainchat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items:  make(map[domainchat.ConversationID]*domainchat.Conversation),
		active: make(map[string]domainchat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) ForParticipant(ctx context.Context, id domainchat.ConversationID, participant domainuser.ID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok || !conv.IsActive || !conv.HasParticipant(participant) {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) FindActive(ctx context.Context, listing domainlistings.ListingID, pair [2]domainuser.ID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[activeKey(listing, pair)]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(r.items[id]), nil
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domainchat.ErrIDRequired
	}
	key := activeKey(conv.Listing, conv.Participants)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.active[key]; taken && conv.IsActive {
		return domainchat.ErrConversationExists
	}
	if _, exists := r.items[conv.ID]; exists {
		return domainchat.ErrConversationExists
	}
	r.items[conv.ID] = cloneConversation(conv)
	if conv.IsActive {
		r.active[key] = conv.ID
	}
	return nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, id domainchat.ConversationID, msg domainchat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok || !conv.IsActive || !conv.HasParticipant(msg.Sender) {
		return domainchat.ErrConversationNotFound
	}
	conv.Apply(msg)
	return nil
}

func (r *ConversationRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainuser.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok || !conv.IsActive || !conv.HasParticipant(reader) {
		return 0, domainchat.ErrConversationNotFound
	}
	return conv.MarkReadBy(reader), nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, participant domainuser.ID) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainchat.Conversation, 0)
	for _, conv := range r.items {
		if conv.IsActive && conv.HasParticipant(participant) {
			out = append(out, cloneConversation(conv))
		}
	}
	domainchat.SortByActivity(out)
	return out, nil
}

func (r *ConversationRepository) List(ctx context.Context, params domainchat.ListParams) ([]*domainchat.Conversation, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainchat.Conversation, 0, len(r.items))
	for _, conv := range r.items {
		if !params.IncludeInactive && !conv.IsActive {
			continue
		}
		matches = append(matches, conv)
	}
	domainchat.SortByActivity(matches)
	total := len(matches)
	page := paginate(matches, params.Offset, params.Limit)
	out := make([]*domainchat.Conversation, 0, len(page))
	for _, conv := range page {
		out = append(out, cloneConversation(conv))
	}
	return out, total, nil
}

// SetActive flips the moderation flag. Reactivating fails with
// ErrConversationExists when the pair has since opened a new conversation.
func (r *ConversationRepository) SetActive(ctx context.Context, id domainchat.ConversationID, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	key := activeKey(conv.Listing, conv.Participants)
	if active && !conv.IsActive {
		if other, taken := r.active[key]; taken && other != conv.ID {
			return domainchat.ErrConversationExists
		}
	}
	if !conv.SetActive(active, at) {
		return nil
	}
	if active {
		r.active[key] = conv.ID
	} else if r.active[key] == conv.ID {
		delete(r.active, key)
	}
	return nil
}

func activeKey(listing domainlistings.ListingID, pair [2]domainuser.ID) string {
	return string(listing) + "|" + domainchat.PairKey(pair)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]domainchat.Message(nil), c.Messages...)
	out.ClearEvents()
	return &out
}

var _ domainchat.Repository = (*ConversationRepository)(nil)
