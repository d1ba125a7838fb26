package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

// UserRepository stores users in memory. Not suitable for production.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[domainuser.ID]*domainuser.User
	byEmail map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[domainuser.ID]*domainuser.User),
		byEmail: make(map[string]domainuser.ID),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domainuser.NormalizeEmail(email)]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	if user, ok := r.byID[id]; ok {
		return cloneUser(user), nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	if user == nil || strings.TrimSpace(string(user.ID)) == "" {
		return domainuser.ErrIDRequired
	}
	emailKey := domainuser.NormalizeEmail(user.Email)
	if emailKey == "" {
		return domainuser.ErrEmailRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byEmail[emailKey]; ok && existingID != user.ID {
		return domainuser.ErrEmailAlreadyUsed
	}
	if previous, ok := r.byID[user.ID]; ok {
		if oldKey := domainuser.NormalizeEmail(previous.Email); oldKey != emailKey {
			delete(r.byEmail, oldKey)
		}
	}
	r.byEmail[emailKey] = user.ID
	r.byID[user.ID] = cloneUser(user)
	return nil
}

// List filters by a case-insensitive match on name or email and orders the
// newest accounts first.
func (r *UserRepository) List(ctx context.Context, params domainuser.ListParams) ([]*domainuser.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	query := strings.ToLower(strings.TrimSpace(params.Query))
	matches := make([]*domainuser.User, 0, len(r.byID))
	for _, u := range r.byID {
		if params.Banned != nil && u.Banned != *params.Banned {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(u.Name+" "+u.Email), query) {
			continue
		}
		matches = append(matches, u)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	total := len(matches)
	page := paginate(matches, params.Offset, params.Limit)
	out := make([]*domainuser.User, 0, len(page))
	for _, u := range page {
		out = append(out, cloneUser(u))
	}
	return out, total, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

func cloneUser(u *domainuser.User) *domainuser.User {
	if u == nil {
		return nil
	}
	copyUser := *u
	copyUser.Roles = append([]domainuser.Role(nil), u.Roles...)
	return &copyUser
}

// SessionStore keeps issued sessions in memory, indexed by user for bulk
// revocation.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[domainauth.SessionID]*domainauth.Session
	userIndex map[domainuser.ID]map[domainauth.SessionID]struct{}
	now       func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[domainauth.SessionID]*domainauth.Session),
		userIndex: make(map[domainuser.ID]map[domainauth.SessionID]struct{}),
		now:       time.Now,
	}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	if _, ok := s.userIndex[session.UserID]; !ok {
		s.userIndex[session.UserID] = make(map[domainauth.SessionID]struct{})
	}
	s.userIndex[session.UserID][session.ID] = struct{}{}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id domainauth.SessionID) (*domainauth.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, domainauth.ErrSessionExpired
	}
	return cloneSession(session), nil
}

func (s *SessionStore) Delete(ctx context.Context, id domainauth.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	if index, ok := s.userIndex[session.UserID]; ok {
		delete(index, id)
		if len(index) == 0 {
			delete(s.userIndex, session.UserID)
		}
	}
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, ok := s.userIndex[userID]
	if !ok {
		return nil
	}
	for id := range index {
		delete(s.sessions, id)
	}
	delete(s.userIndex, userID)
	return nil
}

func cloneSession(s *domainauth.Session) *domainauth.Session {
	if s == nil {
		return nil
	}
	copySession := *s
	copySession.Roles = append([]domainuser.Role(nil), s.Roles...)
	return &copySession
}

var _ domainuser.Repository = (*UserRepository)(nil)
var _ domainauth.SessionStore = (*SessionStore)(nil)
