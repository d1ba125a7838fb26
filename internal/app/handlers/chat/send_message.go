package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	"zedflip/internal/app/handlers/support"
	"zedflip/internal/app/middleware"
	"zedflip/internal/app/outbox"
	"zedflip/internal/app/realtime"
	"zedflip/internal/app/uow"
	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

const sendMessageKey = "chat.send"

// SendMessageCommand appends a message to a conversation the sender takes
// part in. IdempotencyKeyV, when set, makes retries replay the first result.
type SendMessageCommand struct {
	ConversationID  string
	SenderID        string
	Content         string
	IdempotencyKeyV string
}

func (c SendMessageCommand) Key() string { return sendMessageKey }

func (c SendMessageCommand) IdempotencyKey() string {
	if c.IdempotencyKeyV == "" {
		return ""
	}
	return sendMessageKey + ":" + c.SenderID + ":" + c.ConversationID + ":" + c.IdempotencyKeyV
}

func (c SendMessageCommand) ResultPrototype() any { return &dto.ChatMessage{} }

func (c SendMessageCommand) Validate() error {
	if strings.TrimSpace(c.ConversationID) == "" {
		return domainchat.ErrConversationNotFound
	}
	_, err := domainchat.NormalizeContent(c.Content)
	return err
}

type SendMessageHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   realtime.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (dto.ChatMessage, error) {
	var payload dto.ChatMessage
	err := support.WithUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		sender := domainuser.ID(cmd.SenderID)
		conv, err := unit.Conversations().ForParticipant(ctx, domainchat.ConversationID(cmd.ConversationID), sender)
		if err != nil {
			return err
		}
		msg, err := conv.AppendMessage(newMessageID(), sender, cmd.Content, clock(h.Now))
		if err != nil {
			return err
		}
		if err := unit.Conversations().AppendMessage(ctx, conv.ID, msg); err != nil {
			return err
		}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), conv.Drain()); err != nil {
			return err
		}

		payload = dto.MapChatMessage(conv.ID, msg)
		if h.Notifier != nil {
			notifier := h.Notifier
			recipient := conv.OtherParticipant(sender)
			convID := conv.ID
			sent := payload
			uow.AfterCommit(ctx, func(ctx context.Context) {
				notifier.NotifyNewMessage(ctx, convID, sent, recipient)
			})
		}
		return nil
	})
	if err != nil {
		return dto.ChatMessage{}, err
	}
	if h.Logger != nil {
		h.Logger.Debug("message appended", "conversation_id", payload.ConversationID, "message_id", payload.ID, "sender_id", payload.SenderID)
	}
	return payload, nil
}

func (h *SendMessageHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[SendMessageCommand, dto.ChatMessage] = (*SendMessageHandler)(nil)
var _ middleware.IdempotentCommand = SendMessageCommand{}
var _ middleware.SelfValidating = SendMessageCommand{}
