package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"zedflip/internal/app/dto"
	domainchat "zedflip/internal/domain/chat"
	domainuser "zedflip/internal/domain/user"
)

const (
	EventNewMessage      = "new-message"
	EventUserTyping      = "user-typing"
	EventMessagesRead    = "messages-read"
	EventNewNotification = "new-notification"
	EventError           = "error"
)

// Frame is the JSON shape of every server-to-client socket message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type ReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	Marked         int    `json:"marked"`
}

// Notification is an in-app notice pushed to a user channel.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Notifier is the fan-out surface request handlers depend on. Every method is
// fire-and-forget: delivery failures never reach the caller.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conversationID domainchat.ConversationID, message dto.ChatMessage, recipient domainuser.ID)
	NotifyTyping(ctx context.Context, conversationID domainchat.ConversationID, userID domainuser.ID, isTyping bool)
	NotifyRead(ctx context.Context, conversationID domainchat.ConversationID, reader, recipient domainuser.ID, marked int)
	Notify(ctx context.Context, userID domainuser.ID, notification Notification)
}

// Delivery is a frame addressed to a channel as it travels between instances.
// When Also is set the frame reaches the members of both channels, each
// connection once.
type Delivery struct {
	Channel Channel         `json:"channel"`
	Also    Channel         `json:"also,omitempty"`
	Exclude domainuser.ID   `json:"exclude,omitempty"`
	Event   string          `json:"event"`
	Frame   json.RawMessage `json:"frame"`
}

// Broker carries deliveries to every instance, including the publishing one.
type Broker interface {
	Publish(ctx context.Context, delivery Delivery) error
}

// DeliveryObserver records fan-out outcomes.
type DeliveryObserver interface {
	ObserveDelivery(event string, delivered int)
}

// Hub is the fan-out service. Without a Broker it delivers to the local
// Registry only.
type Hub struct {
	Registry *Registry
	Broker   Broker
	Logger   *slog.Logger
	Observer DeliveryObserver
}

func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{Registry: registry, Logger: logger}
}

func (h *Hub) NotifyNewMessage(ctx context.Context, conversationID domainchat.ConversationID, message dto.ChatMessage, recipient domainuser.ID) {
	h.publishDelivery(ctx, Frame{Event: EventNewMessage, Data: message}, Delivery{
		Channel: UserChannel(recipient),
		Also:    ConversationChannel(conversationID),
		Exclude: domainuser.ID(message.SenderID),
	})
}

func (h *Hub) NotifyTyping(ctx context.Context, conversationID domainchat.ConversationID, userID domainuser.ID, isTyping bool) {
	h.publish(ctx, ConversationChannel(conversationID), userID, Frame{
		Event: EventUserTyping,
		Data: TypingPayload{
			ConversationID: string(conversationID),
			UserID:         string(userID),
			IsTyping:       isTyping,
		},
	})
}

func (h *Hub) NotifyRead(ctx context.Context, conversationID domainchat.ConversationID, reader, recipient domainuser.ID, marked int) {
	if marked <= 0 {
		return
	}
	h.publish(ctx, UserChannel(recipient), "", Frame{
		Event: EventMessagesRead,
		Data: ReadPayload{
			ConversationID: string(conversationID),
			ReaderID:       string(reader),
			Marked:         marked,
		},
	})
}

func (h *Hub) Notify(ctx context.Context, userID domainuser.ID, notification Notification) {
	h.publish(ctx, UserChannel(userID), "", Frame{Event: EventNewNotification, Data: notification})
}

// Deliver hands a delivery to local subscribers. Brokers call it for every
// delivery they receive.
func (h *Hub) Deliver(delivery Delivery) int {
	channels := []Channel{delivery.Channel}
	if delivery.Also != "" {
		channels = append(channels, delivery.Also)
	}
	delivered := h.Registry.DeliverAll(channels, delivery.Frame, delivery.Exclude)
	if h.Observer != nil {
		h.Observer.ObserveDelivery(delivery.Event, delivered)
	}
	return delivered
}

func (h *Hub) publish(ctx context.Context, ch Channel, exclude domainuser.ID, frame Frame) {
	h.publishDelivery(ctx, frame, Delivery{Channel: ch, Exclude: exclude})
}

func (h *Hub) publishDelivery(ctx context.Context, frame Frame, delivery Delivery) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger().WarnContext(ctx, "fan-out encode failed", "event", frame.Event, "error", err)
		return
	}
	delivery.Event, delivery.Frame = frame.Event, payload
	ch := delivery.Channel
	if h.Broker != nil {
		err := h.Broker.Publish(ctx, delivery)
		if err == nil {
			return
		}
		h.logger().WarnContext(ctx, "fan-out broker publish failed, delivering locally",
			"event", frame.Event, "channel", ch, "error", err)
	}
	delivered := h.Deliver(delivery)
	h.logger().DebugContext(ctx, "fan-out delivered", "event", frame.Event, "channel", ch, "delivered", delivered)
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// EncodeFrame marshals a frame for direct replies on a single connection.
func EncodeFrame(event string, data any) []byte {
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return []byte(`{"event":"error","data":{"message":"encode failed"}}`)
	}
	return payload
}

var _ Notifier = (*Hub)(nil)
