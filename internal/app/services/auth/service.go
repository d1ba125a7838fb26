package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"zedflip/internal/app/policies"
	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrPasswordTooShort   = errors.New("auth: password must be at least 6 characters")
	ErrUserBanned         = errors.New("auth: account is banned")
	ErrForbidden          = errors.New("auth: insufficient role")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	NeedsRehash(hash string) bool
}

type Service struct {
	Users      domainuser.Repository
	Sessions   domainauth.SessionStore
	Passwords  PasswordHasher
	Tokens     domainauth.TokenIssuer
	SessionTTL time.Duration
	// Email delivers verification codes. Without it codes are issued but
	// never sent.
	Email           policies.Notifier
	VerificationTTL time.Duration
	Codes           func() (string, error)
	Logger          *slog.Logger
	Now             func() time.Time
}

type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Phone    string
	City     string
}

type LoginParams struct {
	Email    string
	Password string
}

type AuthResult struct {
	User      *domainuser.User
	Token     string
	ExpiresAt time.Time
}

// Principal is the verified caller behind a bearer token.
type Principal struct {
	User    *domainuser.User
	Session *domainauth.Session
}

func (p Principal) UserID() domainuser.ID { return p.User.ID }

func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, err
	}
	email := domainuser.NormalizeEmail(params.Email)
	if email == "" {
		return nil, domainuser.ErrEmailRequired
	}
	if _, err := s.Users.ByEmail(ctx, email); err == nil {
		return nil, domainuser.ErrEmailAlreadyUsed
	} else if !errors.Is(err, domainuser.ErrNotFound) {
		return nil, err
	}
	hash, err := s.Passwords.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	user, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Email:        email,
		Name:         params.Name,
		Phone:        params.Phone,
		City:         params.City,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	code, err := s.newVerification(user)
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	if err := s.sendVerification(ctx, user, code); err != nil {
		s.logger().WarnContext(ctx, "verification email failed", "user_id", user.ID, "error", err)
	}
	return result, nil
}

func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	email := domainuser.NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.Passwords.Compare(user.PasswordHash, params.Password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Banned {
		return nil, ErrUserBanned
	}
	if s.Passwords.NeedsRehash(user.PasswordHash) {
		if hash, err := s.Passwords.Hash(params.Password); err == nil {
			user.PasswordHash = hash
		} else {
			s.logger().WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		}
	}
	user.SeenAt(s.now())
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "user authenticated", "user_id", user.ID)
	return result, nil
}

// Logout revokes the session behind token. Unknown or expired tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return nil
	}
	if err := s.Sessions.Delete(ctx, claims.SessionID); err != nil {
		return err
	}
	s.logger().InfoContext(ctx, "session terminated", "user_id", claims.UserID)
	return nil
}

// Authenticate verifies the token signature, then requires the session to
// still exist and the user to be in good standing.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domainauth.ErrTokenRequired
	}
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	session, err := s.Sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != claims.UserID {
		return nil, domainauth.ErrTokenInvalid
	}
	user, err := s.Users.ByID(ctx, session.UserID)
	if err != nil {
		_ = s.Sessions.Delete(ctx, session.ID)
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainauth.ErrSessionNotFound
		}
		return nil, err
	}
	if user.Banned {
		_ = s.Sessions.DeleteByUser(ctx, user.ID)
		return nil, ErrUserBanned
	}
	return &Principal{User: user, Session: session}, nil
}

func (s *Service) Me(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	if s.Users == nil {
		return nil, errors.New("auth: user repository required")
	}
	return s.Users.ByID(ctx, id)
}

// EnsureAdmin creates the admin account when missing and grants the admin
// role to an existing account with the same email.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (*domainuser.User, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	existing, err := s.Users.ByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsAdmin() {
			return existing, nil
		}
		if err := existing.EnsureRole(domainuser.RoleAdmin, s.now()); err != nil {
			return nil, err
		}
		return existing, s.Users.Save(ctx, existing)
	case !errors.Is(err, domainuser.ErrNotFound):
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.Passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	admin, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           domainuser.ID(uuid.NewString()),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Roles:        []domainuser.Role{domainuser.RoleUser, domainuser.RoleAdmin},
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	admin.MarkVerified(s.now())
	if err := s.Users.Save(ctx, admin); err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "admin account created", "user_id", admin.ID, "email", admin.Email)
	return admin, nil
}

func (s *Service) issueSession(ctx context.Context, user *domainuser.User) (*AuthResult, error) {
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		ID:     domainauth.SessionID(uuid.NewString()),
		UserID: user.ID,
		Roles:  append([]domainuser.Role(nil), user.Roles...),
		TTL:    s.sessionTTL(),
		Now:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	token, err := s.Tokens.Issue(domainauth.Claims{
		SessionID: session.ID,
		UserID:    session.UserID,
		Roles:     session.Roles,
		IssuedAt:  session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 7 * 24 * time.Hour
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Users == nil:
		return errors.New("auth: user repository required")
	case s.Sessions == nil:
		return errors.New("auth: session store required")
	case s.Passwords == nil:
		return errors.New("auth: password hasher required")
	case s.Tokens == nil:
		return errors.New("auth: token issuer required")
	default:
		return nil
	}
}
