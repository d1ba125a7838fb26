package chat

import (
	"context"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/realtime"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

const (
	getConversationKey  = "chat.get"
	openConversationKey = "chat.open"
)

// GetConversationQuery reads a conversation on behalf of one of its
// participants without touching read receipts.
type GetConversationQuery struct {
	ConversationID string
	ViewerID       string
}

func (q GetConversationQuery) Key() string { return getConversationKey }

type GetConversationHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetConversationHandler) Handle(ctx context.Context, q GetConversationQuery) (dto.ConversationDetail, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ConversationDetail{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	viewer := domainuser.ID(q.ViewerID)
	conv, err := unit.Conversations().ForParticipant(execCtx, domainchat.ConversationID(q.ConversationID), viewer)
	if err != nil {
		return dto.ConversationDetail{}, err
	}
	dir, err := support.LoadDirectory(execCtx, unit, conv)
	if err != nil {
		return dto.ConversationDetail{}, err
	}
	return dto.MapConversationDetail(conv, viewer, dir), nil
}

// OpenConversationCommand is what a participant viewing a conversation
// issues: it returns the full thread and marks the viewer's messages read.
type OpenConversationCommand struct {
	ConversationID string
	ViewerID       string
}

func (c OpenConversationCommand) Key() string { return openConversationKey }

type OpenConversationHandler struct {
	UoWFactory uow.UoWFactory
	Notifier   realtime.Notifier
}

func (h *OpenConversationHandler) Handle(ctx context.Context, cmd OpenConversationCommand) (dto.ConversationDetail, error) {
	var out dto.ConversationDetail
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		viewer := domainuser.ID(cmd.ViewerID)
		conv, err := unit.Conversations().ForParticipant(ctx, domainchat.ConversationID(cmd.ConversationID), viewer)
		if err != nil {
			return err
		}
		if _, err := markRead(ctx, unit, conv, viewer, h.Notifier); err != nil {
			return err
		}
		dir, err := support.LoadDirectory(ctx, unit, conv)
		if err != nil {
			return err
		}
		out = dto.MapConversationDetail(conv, viewer, dir)
		return nil
	})
	if err != nil {
		return dto.ConversationDetail{}, err
	}
	return out, nil
}

var _ queries.Handler[GetConversationQuery, dto.ConversationDetail] = (*GetConversationHandler)(nil)
var _ commands.Handler[OpenConversationCommand, dto.ConversationDetail] = (*OpenConversationHandler)(nil)
