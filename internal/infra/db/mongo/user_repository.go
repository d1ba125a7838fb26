package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(usersCollection)}
}

func ensureUserIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"email": domainuser.NormalizeEmail(email)})
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	if user == nil || user.ID == "" {
		return domainuser.ErrIDRequired
	}
	doc := newUserDocument(user)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainuser.ErrEmailAlreadyUsed
		}
		return fmt.Errorf("mongo: save user: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, params domainuser.ListParams) ([]*domainuser.User, int, error) {
	filter := bson.M{}
	if params.Banned != nil {
		filter["banned"] = *params.Banned
	}
	if params.Query != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(params.Query), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"email": pattern}}
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo: count users: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(params.Offset))
	if params.Limit > 0 {
		opts.SetLimit(int64(params.Limit))
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("mongo: list users: %w", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("mongo: decode users: %w", err)
	}
	out := make([]*domainuser.User, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, int(total), nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count users: %w", err)
	}
	return int(n), nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find user: %w", err)
	}
	return doc.toAggregate(), nil
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	Phone        string    `bson:"phone,omitempty"`
	City         string    `bson:"city,omitempty"`
	PasswordHash string    `bson:"password_hash"`
	Roles        []string  `bson:"roles"`
	Banned       bool      `bson:"banned"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
	LastActiveAt time.Time `bson:"last_active_at"`

	EmailVerified       bool      `bson:"email_verified"`
	VerificationCode    string    `bson:"verification_code,omitempty"`
	VerificationExpires time.Time `bson:"verification_expires,omitempty"`
}

func newUserDocument(u *domainuser.User) userDocument {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role))
	}
	return userDocument{
		ID:           string(u.ID),
		Email:        domainuser.NormalizeEmail(u.Email),
		Name:         u.Name,
		Phone:        u.Phone,
		City:         u.City,
		PasswordHash: u.PasswordHash,
		Roles:        roles,
		Banned:       u.Banned,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
		LastActiveAt: u.LastActiveAt.UTC(),

		EmailVerified:       u.EmailVerified,
		VerificationCode:    u.VerificationCode,
		VerificationExpires: u.VerificationExpires.UTC(),
	}
}

func (d userDocument) toAggregate() *domainuser.User {
	roles := make([]domainuser.Role, 0, len(d.Roles))
	for _, role := range d.Roles {
		roles = append(roles, domainuser.Role(role))
	}
	return &domainuser.User{
		ID:           domainuser.ID(d.ID),
		Email:        d.Email,
		Name:         d.Name,
		Phone:        d.Phone,
		City:         d.City,
		PasswordHash: d.PasswordHash,
		Roles:        roles,
		Banned:       d.Banned,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
		LastActiveAt: d.LastActiveAt.UTC(),

		EmailVerified:       d.EmailVerified,
		VerificationCode:    d.VerificationCode,
		VerificationExpires: d.VerificationExpires.UTC(),
	}
}

// SessionStore keeps issued sessions; Mongo expires them through a TTL index.
type SessionStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{col: db.Collection(sessionsCollection), now: time.Now}
}

func ensureSessionIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: session indexes: %w", err)
	}
	return nil
}

type sessionDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Roles     []string  `bson:"roles"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	if session == nil {
		return domainauth.ErrTokenRequired
	}
	roles := make([]string, 0, len(session.Roles))
	for _, role := range session.Roles {
		roles = append(roles, string(role))
	}
	doc := sessionDocument{
		ID:        string(session.ID),
		UserID:    string(session.UserID),
		Roles:     roles,
		CreatedAt: session.CreatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	}
	if _, err := s.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("mongo: save session: %w", err)
	}
	return nil
}

// Get reports expired sessions as expired even before the TTL monitor removes them.
func (s *SessionStore) Get(ctx context.Context, id domainauth.SessionID) (*domainauth.Session, error) {
	var doc sessionDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("mongo: get session: %w", err)
	}
	session := &domainauth.Session{
		ID:        domainauth.SessionID(doc.ID),
		UserID:    domainuser.ID(doc.UserID),
		CreatedAt: doc.CreatedAt.UTC(),
		ExpiresAt: doc.ExpiresAt.UTC(),
	}
	for _, role := range doc.Roles {
		session.Roles = append(session.Roles, domainuser.Role(role))
	}
	if session.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, domainauth.ErrSessionExpired
	}
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, id domainauth.SessionID) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": string(id)}); err != nil {
		return fmt.Errorf("mongo: delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) DeleteByUser(ctx context.Context, userID domainuser.ID) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{"user_id": string(userID)}); err != nil {
		return fmt.Errorf("mongo: delete user sessions: %w", err)
	}
	return nil
}

var (
	_ domainuser.Repository   = (*UserRepository)(nil)
	_ domainauth.SessionStore = (*SessionStore)(nil)
)
