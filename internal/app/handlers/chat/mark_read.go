package chat

import (
	"context"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/realtime"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

const markReadKey = "chat.mark_read"

type MarkReadCommand struct {
	ConversationID string
	ReaderID       string
}

func (c MarkReadCommand) Key() string { return markReadKey }

// MarkReadHandler flips the reader's unread messages. Repeating it is a no-op.
type MarkReadHandler struct {
	UoWFactory uow.UoWFactory
	Notifier   realtime.Notifier
}

func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (dto.MarkReadResult, error) {
	var result dto.MarkReadResult
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		reader := domainuser.ID(cmd.ReaderID)
		conv, err := unit.Conversations().ForParticipant(ctx, domainchat.ConversationID(cmd.ConversationID), reader)
		if err != nil {
			return err
		}
		marked, err := markRead(ctx, unit, conv, reader, h.Notifier)
		if err != nil {
			return err
		}
		result = dto.MarkReadResult{ConversationID: string(conv.ID), Marked: marked}
		return nil
	})
	if err != nil {
		return dto.MarkReadResult{}, err
	}
	return result, nil
}

// markRead persists the receipt, mirrors it on conv and schedules the
// messages-read signal for the other participant.
func markRead(ctx context.Context, unit uow.UnitOfWork, conv *domainchat.Conversation, reader domainuser.ID, notifier realtime.Notifier) (int, error) {
	if conv.UnreadFor(reader) == 0 {
		return 0, nil
	}
	marked, err := unit.Conversations().MarkRead(ctx, conv.ID, reader)
	if err != nil {
		return 0, err
	}
	conv.MarkReadBy(reader)
	if marked > 0 && notifier != nil {
		convID := conv.ID
		other := conv.OtherParticipant(reader)
		uow.AfterCommit(ctx, func(ctx context.Context) {
			notifier.NotifyRead(ctx, convID, reader, other, marked)
		})
	}
	return marked, nil
}

var _ commands.Handler[MarkReadCommand, dto.MarkReadResult] = (*MarkReadHandler)(nil)
