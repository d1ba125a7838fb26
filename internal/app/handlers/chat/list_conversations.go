package chat

import (
	"context"

	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

const (
	listConversationsKey = "chat.list"
	unreadCountKey       = "chat.unread"
)

// ListConversationsQuery returns the viewer's active conversations, most
// recently active first. Messages are left out of the list view.
type ListConversationsQuery struct {
	UserID string
}

func (q ListConversationsQuery) Key() string { return listConversationsKey }

type ListConversationsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) ([]dto.Conversation, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	viewer := domainuser.ID(q.UserID)
	convs, err := unit.Conversations().ListForUser(execCtx, viewer)
	if err != nil {
		return nil, err
	}
	domainchat.SortByActivity(convs)
	dir, err := support.LoadDirectory(execCtx, unit, convs...)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, dto.MapConversation(conv, viewer, dir))
	}
	return out, nil
}

// UnreadCountQuery totals unread messages addressed to the user across their
// active conversations. Nothing is cached; every call recomputes.
type UnreadCountQuery struct {
	UserID string
}

func (q UnreadCountQuery) Key() string { return unreadCountKey }

type UnreadCountHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *UnreadCountHandler) Handle(ctx context.Context, q UnreadCountQuery) (dto.UnreadCount, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.UnreadCount{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	user := domainuser.ID(q.UserID)
	convs, err := unit.Conversations().ListForUser(execCtx, user)
	if err != nil {
		return dto.UnreadCount{}, err
	}
	return dto.UnreadCount{UnreadCount: domainchat.UnreadTotal(convs, user)}, nil
}

var _ queries.Handler[ListConversationsQuery, []dto.Conversation] = (*ListConversationsHandler)(nil)
var _ queries.Handler[UnreadCountQuery, dto.UnreadCount] = (*UnreadCountHandler)(nil)
