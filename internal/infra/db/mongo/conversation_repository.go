package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

// ConversationRepository stores each conversation as one document with its
// messages embedded. Appends and read receipts are targeted updates, so
// writers on the same conversation never replace each other's messages.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(conversationsCollection)}
}

func ensureConversationIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(conversationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetName("active_pair_per_listing").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}}},
		{Keys: bson.D{{Key: "last_message_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: conversation indexes: %w", err)
	}
	return nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)}, "by id")
}

func (r *ConversationRepository) ForParticipant(ctx context.Context, id domainchat.ConversationID, participant domainuser.ID) (*domainchat.Conversation, error) {
	if participant == "" {
		return nil, domainchat.ErrConversationNotFound
	}
	return r.findOne(ctx, bson.M{
		"_id":          string(id),
		"is_active":    true,
		"participants": string(participant),
	}, "for participant")
}

func (r *ConversationRepository) FindActive(ctx context.Context, listing domainlistings.ListingID, pair [2]domainuser.ID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{
		"listing_id": string(listing),
		"pair_key":   domainchat.PairKey(pair),
		"is_active":  true,
	}, "find active")
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domainchat.ErrIDRequired
	}
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return fmt.Errorf("mongo: create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, id domainchat.ConversationID, msg domainchat.Message) error {
	filter := bson.M{
		"_id":          string(id),
		"is_active":    true,
		"participants": string(msg.Sender),
	}
	update := bson.M{
		"$push": bson.M{"messages": newMessageDocument(msg)},
		"$set": bson.M{
			"last_message":    msg.Content,
			"last_message_at": msg.CreatedAt.UTC(),
			"updated_at":      msg.CreatedAt.UTC(),
		},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongo: append message: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

// MarkRead flips the reader's unread messages in place and reports how many
// it flipped. The array filter names the exact message ids that were read, so
// a message appended after the read is left unread and is not counted.
func (r *ConversationRepository) MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainuser.ID) (int, error) {
	conv, err := r.ForParticipant(ctx, id, reader)
	if err != nil {
		return 0, err
	}
	ids := unreadMessageIDs(conv, reader)
	if len(ids) == 0 {
		return 0, nil
	}
	update := bson.M{"$set": bson.M{"messages.$[m].is_read": true}}
	opts := options.Update().SetArrayFilters(markReadFilters(ids))
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id), "is_active": true}, update, opts); err != nil {
		return 0, fmt.Errorf("mongo: mark read: %w", err)
	}
	return len(ids), nil
}

func unreadMessageIDs(conv *domainchat.Conversation, reader domainuser.ID) []string {
	if !conv.HasParticipant(reader) {
		return nil
	}
	var ids []string
	for _, msg := range conv.Messages {
		if msg.Sender != reader && !msg.IsRead {
			ids = append(ids, string(msg.ID))
		}
	}
	return ids
}

func markReadFilters(ids []string) options.ArrayFilters {
	return options.ArrayFilters{
		Filters: []interface{}{bson.M{"m._id": bson.M{"$in": ids}, "m.is_read": false}},
	}
}

func (r *ConversationRepository) ListForUser(ctx context.Context, participant domainuser.ID) ([]*domainchat.Conversation, error) {
	filter := bson.M{"participants": string(participant), "is_active": true}
	opts := options.Find().SetSort(activitySort())
	return r.find(ctx, filter, opts, "list for user")
}

func (r *ConversationRepository) List(ctx context.Context, params domainchat.ListParams) ([]*domainchat.Conversation, int, error) {
	filter := bson.M{}
	if !params.IncludeInactive {
		filter["is_active"] = true
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo: count conversations: %w", err)
	}
	opts := options.Find().SetSort(activitySort()).SetSkip(int64(params.Offset))
	if params.Limit > 0 {
		opts.SetLimit(int64(params.Limit))
	}
	items, err := r.find(ctx, filter, opts, "list")
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

// SetActive flips the moderation flag. Reactivating conflicts with
// ErrConversationExists when the pair has since opened another conversation.
func (r *ConversationRepository) SetActive(ctx context.Context, id domainchat.ConversationID, active bool, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{"is_active": active, "updated_at": at.UTC()}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return fmt.Errorf("mongo: set conversation active: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M, op string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, fmt.Errorf("mongo: conversation %s: %w", op, err)
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, op string) ([]*domainchat.Conversation, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: conversations %s: %w", op, err)
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode conversations: %w", err)
	}
	out := make([]*domainchat.Conversation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func activitySort() bson.D {
	return bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}

type conversationDocument struct {
	ID            string            `bson:"_id"`
	Participants  []string          `bson:"participants"`
	PairKey       string            `bson:"pair_key"`
	ListingID     string            `bson:"listing_id"`
	Messages      []messageDocument `bson:"messages"`
	LastMessage   string            `bson:"last_message"`
	LastMessageAt time.Time         `bson:"last_message_at"`
	IsActive      bool              `bson:"is_active"`
	CreatedAt     time.Time         `bson:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at"`
}

type messageDocument struct {
	ID        string    `bson:"_id"`
	SenderID  string    `bson:"sender_id"`
	Content   string    `bson:"content"`
	IsRead    bool      `bson:"is_read"`
	CreatedAt time.Time `bson:"created_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:            string(c.ID),
		Participants:  []string{string(c.Participants[0]), string(c.Participants[1])},
		PairKey:       domainchat.PairKey(c.Participants),
		ListingID:     string(c.Listing),
		Messages:      make([]messageDocument, 0, len(c.Messages)),
		LastMessage:   c.LastMessageText,
		LastMessageAt: c.LastMessageAt.UTC(),
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
	for _, msg := range c.Messages {
		doc.Messages = append(doc.Messages, newMessageDocument(msg))
	}
	return doc
}

func newMessageDocument(m domainchat.Message) messageDocument {
	return messageDocument{
		ID:        string(m.ID),
		SenderID:  string(m.Sender),
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:              domainchat.ConversationID(d.ID),
		Listing:         domainlistings.ListingID(d.ListingID),
		Messages:        make([]domainchat.Message, 0, len(d.Messages)),
		LastMessageText: d.LastMessage,
		LastMessageAt:   d.LastMessageAt.UTC(),
		IsActive:        d.IsActive,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if len(d.Participants) == 2 {
		conv.Participants = [2]domainuser.ID{domainuser.ID(d.Participants[0]), domainuser.ID(d.Participants[1])}
	}
	for _, m := range d.Messages {
		conv.Messages = append(conv.Messages, domainchat.Message{
			ID:        domainchat.MessageID(m.ID),
			Sender:    domainuser.ID(m.SenderID),
			Content:   m.Content,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return conv
}

var _ domainchat.Repository = (*ConversationRepository)(nil)
