package ginserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	chatapp "zedflip/internal/app/handlers/chat"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/realtime"
	domainchat "zedflip/internal/domain/chat"
	wsconn "zedflip/internal/infra/realtime"
)

const (
	inboundJoin   = "join-conversation"
	inboundLeave  = "leave-conversation"
	inboundSend   = "send-message"
	inboundTyping = "typing"

	socketActionTimeout = 5 * time.Second
)

// ConnectionObserver counts open sockets.
type ConnectionObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// SocketHandler authenticates the handshake, upgrades the connection and
// serves the realtime protocol for its lifetime.
type SocketHandler struct {
	Auth           Authenticator
	Commands       commands.Bus
	Queries        queries.Bus
	Registry       *realtime.Registry
	Notifier       realtime.Notifier
	Observer       ConnectionObserver
	SendBuffer     int
	AllowedOrigins []string
	Logger         *slog.Logger
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type inboundMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type inboundTypingData struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func (h SocketHandler) Connect(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	if token == "" || h.Auth == nil {
		respondStatus(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	principal, err := h.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		respondStatus(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Debug("websocket upgrade failed", "error", err)
		return
	}

	conn := wsconn.NewConnection(principal.UserID(), ws, h.SendBuffer)
	h.Registry.Attach(conn)
	if h.Observer != nil {
		h.Observer.ConnectionOpened()
	}
	h.logger().Info("socket connected", "user_id", conn.UserID(), "connection_id", conn.ID())
	defer func() {
		h.Registry.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
		if h.Observer != nil {
			h.Observer.ConnectionClosed()
		}
		h.logger().Info("socket disconnected", "user_id", conn.UserID(), "connection_id", conn.ID())
	}()

	go conn.WriteLoop()
	session := socketSession{handler: h, conn: conn, base: context.WithoutCancel(c.Request.Context())}
	if err := conn.ReadLoop(session.handle); err != nil {
		h.logger().Debug("socket read ended", "connection_id", conn.ID(), "error", err)
	}
}

func (h SocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return false
}

func (h SocketHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// socketSession is the protocol state of one connection.
type socketSession struct {
	handler SocketHandler
	conn    *wsconn.Connection
	base    context.Context
}

func (s socketSession) handle(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.replyError("Invalid payload")
		return
	}
	ctx, cancel := context.WithTimeout(s.base, socketActionTimeout)
	defer cancel()
	switch frame.Event {
	case inboundJoin:
		s.join(ctx, frame.Data)
	case inboundLeave:
		s.leave(frame.Data)
	case inboundSend:
		s.send(ctx, frame.Data)
	case inboundTyping:
		s.typing(ctx, frame.Data)
	default:
		s.replyError("Unsupported event")
	}
}

// join admits the connection to a conversation channel only for participants.
func (s socketSession) join(ctx context.Context, raw json.RawMessage) {
	var ref conversationRef
	if err := json.Unmarshal(raw, &ref); err != nil || strings.TrimSpace(ref.ConversationID) == "" {
		s.replyError(publicMessage(domainchat.ErrConversationNotFound))
		return
	}
	query := chatapp.GetConversationQuery{ConversationID: ref.ConversationID, ViewerID: string(s.conn.UserID())}
	if _, err := queries.Ask[chatapp.GetConversationQuery, dto.ConversationDetail](ctx, s.handler.Queries, query); err != nil {
		s.replyFailure(err)
		return
	}
	s.handler.Registry.Join(realtime.ConversationChannel(domainchat.ConversationID(ref.ConversationID)), s.conn)
}

func (s socketSession) leave(raw json.RawMessage) {
	var ref conversationRef
	if err := json.Unmarshal(raw, &ref); err != nil || ref.ConversationID == "" {
		return
	}
	s.handler.Registry.Leave(realtime.ConversationChannel(domainchat.ConversationID(ref.ConversationID)), s.conn)
}

// send takes the same path as the HTTP endpoint; the sender's connection
// gets the stored message back directly.
func (s socketSession) send(ctx context.Context, raw json.RawMessage) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.replyError("Invalid payload")
		return
	}
	cmd := chatapp.SendMessageCommand{
		ConversationID: msg.ConversationID,
		SenderID:       string(s.conn.UserID()),
		Content:        msg.Content,
	}
	stored, err := commands.Dispatch[chatapp.SendMessageCommand, dto.ChatMessage](ctx, s.handler.Commands, cmd)
	if err != nil {
		s.replyFailure(err)
		return
	}
	_ = s.conn.Send(realtime.EncodeFrame(realtime.EventNewMessage, stored))
}

// typing is relayed only for conversations this connection has joined.
func (s socketSession) typing(ctx context.Context, raw json.RawMessage) {
	var data inboundTypingData
	if err := json.Unmarshal(raw, &data); err != nil || data.ConversationID == "" {
		return
	}
	id := domainchat.ConversationID(data.ConversationID)
	if !s.handler.Registry.IsMember(realtime.ConversationChannel(id), s.conn.ID()) {
		return
	}
	s.handler.Notifier.NotifyTyping(ctx, id, s.conn.UserID(), data.IsTyping)
}

func (s socketSession) replyFailure(err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		s.handler.logger().Error("socket action failed", "user_id", s.conn.UserID(), "error", err)
		s.replyError(internalErrorMessage)
		return
	}
	s.replyError(publicMessage(err))
}

func (s socketSession) replyError(message string) {
	if err := s.conn.Send(realtime.EncodeFrame(realtime.EventError, realtime.ErrorPayload{Message: message})); err != nil &&
		!errors.Is(err, wsconn.ErrConnectionClosed) {
		s.handler.logger().Debug("socket error frame dropped", "connection_id", s.conn.ID(), "error", err)
	}
}

var _ SocketHTTP = SocketHandler{}
