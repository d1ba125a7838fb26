package realtime

import (
	"sync"

	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

// Channel names a delivery group: a user's personal channel or a conversation.
type Channel string

func UserChannel(id domainuser.ID) Channel {
	return Channel("user:" + string(id))
}

func ConversationChannel(id domainchat.ConversationID) Channel {
	return Channel("conversation:" + string(id))
}

// Subscriber is a live connection bound to exactly one user for its lifetime.
type Subscriber interface {
	ID() string
	UserID() domainuser.ID
	// Send must not block; a subscriber that cannot keep up drops frames.
	Send(payload []byte) error
}

// Registry tracks which subscribers belong to which channels. A user may hold
// several connections at once; each joins the user's personal channel on attach.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	channels    map[Channel]map[string]Subscriber
	memberships map[string]map[Channel]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
		channels:    make(map[Channel]map[string]Subscriber),
		memberships: make(map[string]map[Channel]struct{}),
	}
}

// Attach registers sub and subscribes it to its user channel.
func (r *Registry) Attach(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[sub.ID()] = sub
	r.joinLocked(UserChannel(sub.UserID()), sub)
}

// Detach removes sub from every channel it joined.
func (r *Registry) Detach(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := sub.ID()
	if _, ok := r.subscribers[id]; !ok {
		return
	}
	delete(r.subscribers, id)
	for ch := range r.memberships[id] {
		r.leaveLocked(ch, id)
	}
	delete(r.memberships, id)
}

// Join subscribes an attached sub to ch. It reports false for unknown subscribers.
func (r *Registry) Join(ch Channel, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[sub.ID()]; !ok {
		return false
	}
	r.joinLocked(ch, sub)
	return true
}

func (r *Registry) Leave(ch Channel, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(ch, sub.ID())
}

// IsMember reports whether the subscriber with id has joined ch.
func (r *Registry) IsMember(ch Channel, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[ch][id]
	return ok
}

// Members returns a snapshot of the subscribers in ch.
func (r *Registry) Members(ch Channel) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.channels[ch]
	out := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		out = append(out, sub)
	}
	return out
}

// Deliver sends payload to every member of ch except the connections of
// exclude. It returns how many subscribers accepted the frame.
func (r *Registry) Deliver(ch Channel, payload []byte, exclude domainuser.ID) int {
	return r.DeliverAll([]Channel{ch}, payload, exclude)
}

// DeliverAll is Deliver over the union of chs; a subscriber in several of
// them receives payload once.
func (r *Registry) DeliverAll(chs []Channel, payload []byte, exclude domainuser.ID) int {
	seen := make(map[string]struct{})
	delivered := 0
	for _, ch := range chs {
		for _, sub := range r.Members(ch) {
			if _, dup := seen[sub.ID()]; dup {
				continue
			}
			seen[sub.ID()] = struct{}{}
			if exclude != "" && sub.UserID() == exclude {
				continue
			}
			if err := sub.Send(payload); err == nil {
				delivered++
			}
		}
	}
	return delivered
}

// Connections reports how many subscribers are attached.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Online reports whether the user has at least one attached connection.
func (r *Registry) Online(id domainuser.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[UserChannel(id)]) > 0
}

func (r *Registry) joinLocked(ch Channel, sub Subscriber) {
	id := sub.ID()
	members := r.channels[ch]
	if members == nil {
		members = make(map[string]Subscriber)
		r.channels[ch] = members
	}
	members[id] = sub
	joined := r.memberships[id]
	if joined == nil {
		joined = make(map[Channel]struct{})
		r.memberships[id] = joined
	}
	joined[ch] = struct{}{}
}

func (r *Registry) leaveLocked(ch Channel, id string) {
	if members := r.channels[ch]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, ch)
		}
	}
	if joined := r.memberships[id]; joined != nil {
		delete(joined, ch)
	}
}
