package chat

import (
	"time"

	"github.com/google/uuid"

	domainchat "zedflip/internal/domain/chat"
)

func newConversationID() domainchat.ConversationID {
	return domainchat.ConversationID(uuid.NewString())
}

func newMessageID() domainchat.MessageID {
	return domainchat.MessageID(uuid.NewString())
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}
