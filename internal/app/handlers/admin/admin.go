package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/uow"
	domainauth "zedflip/internal/domain/auth"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const (
	statsKey              = "admin.stats"
	listUsersKey          = "admin.users.list"
	toggleBanKey          = "admin.users.ban"
	toggleFeaturedKey     = "admin.listings.featured"
	listListingsKey       = "admin.listings.list"
	listConversationsKey  = "admin.conversations.list"
	setConversationActive = "admin.conversations.active"

	defaultPageSize = 20
	maxPageSize     = 100
	maxWindowOffset = 1_000_000
)

type StatsQuery struct{}

func (q StatsQuery) Key() string { return statsKey }

type StatsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *StatsHandler) Handle(ctx context.Context, _ StatsQuery) (dto.AdminStats, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.AdminStats{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	users, err := unit.Users().Count(execCtx)
	if err != nil {
		return dto.AdminStats{}, err
	}
	byStatus, err := unit.Listings().CountByStatus(execCtx)
	if err != nil {
		return dto.AdminStats{}, err
	}
	_, active, err := unit.Conversations().List(execCtx, domainchat.ListParams{Limit: 1})
	if err != nil {
		return dto.AdminStats{}, err
	}
	_, total, err := unit.Conversations().List(execCtx, domainchat.ListParams{IncludeInactive: true, Limit: 1})
	if err != nil {
		return dto.AdminStats{}, err
	}
	listings := make(map[string]int, len(byStatus))
	for status, n := range byStatus {
		listings[string(status)] = n
	}
	return dto.AdminStats{
		Users:               users,
		Listings:            listings,
		ActiveConversations: active,
		TotalConversations:  total,
	}, nil
}

// ListUsersQuery pages through accounts. Page starts at 1.
type ListUsersQuery struct {
	Search string
	Banned *bool
	Page   int
	Limit  int
}

func (q ListUsersQuery) Key() string { return listUsersKey }

type ListUsersHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListUsersHandler) Handle(ctx context.Context, q ListUsersQuery) (dto.AdminUserList, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.AdminUserList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	offset, limit := window(q.Page, q.Limit)
	users, total, err := unit.Users().List(execCtx, domainuser.ListParams{
		Query:  q.Search,
		Banned: q.Banned,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return dto.AdminUserList{}, err
	}
	out := dto.AdminUserList{
		Users:      make([]dto.UserProfile, 0, len(users)),
		Pagination: dto.NewPagination(offset, limit, total),
	}
	for _, u := range users {
		out.Users = append(out.Users, dto.MapUserProfile(u))
	}
	return out, nil
}

// ToggleBanCommand bans or unbans a user. Banning revokes every session.
type ToggleBanCommand struct {
	AdminID string
	UserID  string
}

func (c ToggleBanCommand) Key() string { return toggleBanKey }

type ToggleBanHandler struct {
	UoWFactory uow.UoWFactory
	Sessions   domainauth.SessionStore
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *ToggleBanHandler) Handle(ctx context.Context, cmd ToggleBanCommand) (dto.BanResult, error) {
	if cmd.AdminID == cmd.UserID {
		return dto.BanResult{}, ErrSelfModeration
	}
	var banned bool
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		u, err := unit.Users().ByID(ctx, domainuser.ID(cmd.UserID))
		if err != nil {
			return err
		}
		banned = u.ToggleBan(now(h.Now))
		return unit.Users().Save(ctx, u)
	})
	if err != nil {
		return dto.BanResult{}, err
	}
	if banned && h.Sessions != nil {
		if err := h.Sessions.DeleteByUser(ctx, domainuser.ID(cmd.UserID)); err != nil {
			return dto.BanResult{}, err
		}
	}
	if h.Logger != nil {
		h.Logger.Info("user ban toggled", "user_id", cmd.UserID, "admin_id", cmd.AdminID, "banned", banned)
	}
	return dto.BanResult{UserID: cmd.UserID, IsBanned: banned}, nil
}

// ListListingsQuery is the moderation view over the catalog. Status is a
// single status or "all", which includes deleted listings; empty means active.
type ListListingsQuery struct {
	Search string
	Status string
	Page   int
	Limit  int
}

func (q ListListingsQuery) Key() string { return listListingsKey }

type ListListingsHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *ListListingsHandler) Handle(ctx context.Context, q ListListingsQuery) (dto.ListingPage, error) {
	statuses, err := domainlistings.StatusFilter(q.Status, true)
	if err != nil {
		return dto.ListingPage{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ListingPage{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	offset, limit := window(q.Page, q.Limit)
	params := domainlistings.SearchParams{
		Query:    q.Search,
		Statuses: statuses,
		Sort:     domainlistings.SortByNewest,
		Limit:    limit,
		Offset:   offset,
	}.Normalized()
	result, err := unit.Listings().Search(execCtx, params)
	if err != nil {
		return dto.ListingPage{}, err
	}
	return dto.MapListingPage(result, params, now(h.Now)), nil
}

type ToggleFeaturedCommand struct {
	ListingID string
}

func (c ToggleFeaturedCommand) Key() string { return toggleFeaturedKey }

type ToggleFeaturedHandler struct {
	UoWFactory uow.UoWFactory
	Now        func() time.Time
}

func (h *ToggleFeaturedHandler) Handle(ctx context.Context, cmd ToggleFeaturedCommand) (dto.FeatureResult, error) {
	var featured bool
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(cmd.ListingID))
		if err != nil {
			return err
		}
		if !listing.Visible() {
			return domainlistings.ErrListingNotFound
		}
		featured = listing.ToggleFeatured(now(h.Now))
		return unit.Listings().Save(ctx, listing)
	})
	if err != nil {
		return dto.FeatureResult{}, err
	}
	return dto.FeatureResult{ListingID: cmd.ListingID, IsFeatured: featured}, nil
}

// ListConversationsQuery is the moderation view over every conversation,
// inactive ones included unless ActiveOnly is set.
type ListConversationsQuery struct {
	ActiveOnly bool
	Page       int
	Limit      int
}

func (q ListConversationsQuery) Key() string { return listConversationsKey }

type ListConversationsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (dto.AdminConversationList, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.AdminConversationList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	offset, limit := window(q.Page, q.Limit)
	convs, total, err := unit.Conversations().List(execCtx, domainchat.ListParams{
		IncludeInactive: !q.ActiveOnly,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		return dto.AdminConversationList{}, err
	}
	dir, err := support.LoadDirectory(execCtx, unit, convs...)
	if err != nil {
		return dto.AdminConversationList{}, err
	}
	out := dto.AdminConversationList{
		Conversations: make([]dto.Conversation, 0, len(convs)),
		Pagination:    dto.NewPagination(offset, limit, total),
	}
	for _, conv := range convs {
		out.Conversations = append(out.Conversations, dto.MapConversation(conv, "", dir))
	}
	return out, nil
}

// SetConversationActiveCommand soft-disables or restores a conversation.
type SetConversationActiveCommand struct {
	ConversationID string
	Active         bool
}

func (c SetConversationActiveCommand) Key() string { return setConversationActive }

type SetConversationActiveHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *SetConversationActiveHandler) Handle(ctx context.Context, cmd SetConversationActiveCommand) (dto.ConversationActivation, error) {
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Conversations().SetActive(ctx, domainchat.ConversationID(cmd.ConversationID), cmd.Active, now(h.Now))
	})
	if err != nil {
		return dto.ConversationActivation{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("conversation moderated", "conversation_id", cmd.ConversationID, "active", cmd.Active)
	}
	return dto.ConversationActivation{ConversationID: cmd.ConversationID, IsActive: cmd.Active}, nil
}

var (
	_ queries.Handler[StatsQuery, dto.AdminStats]                                = (*StatsHandler)(nil)
	_ queries.Handler[ListUsersQuery, dto.AdminUserList]                         = (*ListUsersHandler)(nil)
	_ commands.Handler[ToggleBanCommand, dto.BanResult]                          = (*ToggleBanHandler)(nil)
	_ commands.Handler[ToggleFeaturedCommand, dto.FeatureResult]                 = (*ToggleFeaturedHandler)(nil)
	_ queries.Handler[ListListingsQuery, dto.ListingPage]                        = (*ListListingsHandler)(nil)
	_ queries.Handler[ListConversationsQuery, dto.AdminConversationList]         = (*ListConversationsHandler)(nil)
	_ commands.Handler[SetConversationActiveCommand, dto.ConversationActivation] = (*SetConversationActiveHandler)(nil)
)

var ErrSelfModeration = errors.New("admin: cannot moderate your own account")

// window turns a 1-based page into an offset and a bounded limit.
func window(page, limit int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	if last := maxWindowOffset/limit + 1; page > last {
		page = last
	}
	return (page - 1) * limit, limit
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}
