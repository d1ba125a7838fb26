package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	chatapp "zedflip/internal/app/handlers/chat"
	"zedflip/internal/app/queries"
)

const idempotencyHeader = "Idempotency-Key"

// ChatHandler exposes conversations to their participants.
type ChatHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type startConversationRequest struct {
	ListingID string `json:"listingId"`
	Message   string `json:"message"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h ChatHandler) List(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	query := chatapp.ListConversationsQuery{UserID: string(principal.UserID())}
	result, err := queries.Ask[chatapp.ListConversationsQuery, []dto.Conversation](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h ChatHandler) Unread(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	query := chatapp.UnreadCountQuery{UserID: string(principal.UserID())}
	result, err := queries.Ask[chatapp.UnreadCountQuery, dto.UnreadCount](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Get returns the full thread and marks the caller's incoming messages read.
func (h ChatHandler) Get(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := chatapp.OpenConversationCommand{
		ConversationID: c.Param("id"),
		ViewerID:       string(principal.UserID()),
	}
	result, err := commands.Dispatch[chatapp.OpenConversationCommand, dto.ConversationDetail](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Start finds or creates the caller's conversation about a listing.
func (h ChatHandler) Start(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	cmd := chatapp.StartConversationCommand{
		ListingID:   strings.TrimSpace(req.ListingID),
		InitiatorID: string(principal.UserID()),
		Message:     req.Message,
	}
	result, err := commands.Dispatch[chatapp.StartConversationCommand, dto.StartConversationResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondOK(c, status, result.Conversation)
}

func (h ChatHandler) Send(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	cmd := chatapp.SendMessageCommand{
		ConversationID:  c.Param("id"),
		SenderID:        string(principal.UserID()),
		Content:         req.Content,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	result, err := commands.Dispatch[chatapp.SendMessageCommand, dto.ChatMessage](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusCreated, result)
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := chatapp.MarkReadCommand{
		ConversationID: c.Param("id"),
		ReaderID:       string(principal.UserID()),
	}
	result, err := commands.Dispatch[chatapp.MarkReadCommand, dto.MarkReadResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

var _ ChatHTTP = ChatHandler{}
