package user

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrIDRequired          = errors.New("user: id is required")
	ErrEmailRequired       = errors.New("user: email is required")
	ErrEmailInvalid        = errors.New("user: email is invalid")
	ErrPasswordHashMissing = errors.New("user: password hash is required")
	ErrNameRequired        = errors.New("user: name is required")
	ErrNameLength          = errors.New("user: name must be between 2 and 50 characters")
	ErrPhoneInvalid        = errors.New("user: phone must be a valid Zambian number (+260XXXXXXXXX)")
	ErrInvalidRole         = errors.New("user: invalid role")
	ErrEmailAlreadyUsed    = errors.New("user: email already used")
	ErrNotFound            = errors.New("user: not found")
	ErrAlreadyVerified     = errors.New("user: email is already verified")
	ErrVerificationInvalid = errors.New("user: invalid or expired verification code")
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+260[0-9]{9}$`)
)

type ID string

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	City         string
	PasswordHash string
	Roles        []Role
	Banned       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt time.Time

	EmailVerified       bool
	VerificationCode    string
	VerificationExpires time.Time
}

// ListParams filter the moderation user list.
type ListParams struct {
	Query  string
	Banned *bool
	Limit  int
	Offset int
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
	List(ctx context.Context, params ListParams) ([]*User, int, error)
	Count(ctx context.Context) (int, error)
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	City         string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name, err := normalizeName(params.Name)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(params.Phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return nil, ErrPhoneInvalid
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}

	return &User{
		ID:           ID(id),
		Email:        email,
		Name:         name,
		Phone:        phone,
		City:         strings.TrimSpace(params.City),
		PasswordHash: params.PasswordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}, nil
}

func (u *User) UpdateProfile(name, phone, city string, now time.Time) error {
	normalized, err := normalizeName(name)
	if err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return ErrPhoneInvalid
	}
	u.Name = normalized
	u.Phone = phone
	u.City = strings.TrimSpace(city)
	u.touch(now)
	return nil
}

func (u *User) SetPasswordHash(hash string, now time.Time) error {
	if strings.TrimSpace(hash) == "" {
		return ErrPasswordHashMissing
	}
	u.PasswordHash = hash
	u.touch(now)
	return nil
}

// IssueVerification replaces any pending code with code, valid until expires.
func (u *User) IssueVerification(code string, expires, now time.Time) error {
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	u.VerificationCode = code
	u.VerificationExpires = expires.UTC()
	u.touch(now)
	return nil
}

// VerifyEmail consumes the pending code. A wrong, expired or missing code
// leaves the pending code in place.
func (u *User) VerifyEmail(code string, now time.Time) error {
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	code = strings.TrimSpace(code)
	if code == "" || u.VerificationCode == "" || code != u.VerificationCode || !now.Before(u.VerificationExpires) {
		return ErrVerificationInvalid
	}
	u.EmailVerified = true
	u.VerificationCode = ""
	u.VerificationExpires = time.Time{}
	u.touch(now)
	return nil
}

// MarkVerified trusts the address without a code, as for seeded accounts.
func (u *User) MarkVerified(now time.Time) {
	u.EmailVerified = true
	u.VerificationCode = ""
	u.VerificationExpires = time.Time{}
	u.touch(now)
}

// ToggleBan flips the ban flag and reports the new value.
func (u *User) ToggleBan(now time.Time) bool {
	u.Banned = !u.Banned
	u.touch(now)
	return u.Banned
}

func (u *User) EnsureRole(role Role, now time.Time) error {
	role = normalizeRole(role)
	if role == "" {
		return ErrInvalidRole
	}
	if u.HasRole(role) {
		return nil
	}
	u.Roles = append(u.Roles, role)
	u.touch(now)
	return nil
}

func (u *User) HasRole(role Role) bool {
	role = normalizeRole(role)
	if role == "" {
		return false
	}
	for _, current := range u.Roles {
		if normalizeRole(current) == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

func (u *User) SeenAt(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.LastActiveAt = now.UTC()
}

func (u *User) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.UpdatedAt = now.UTC()
}

// NormalizeEmail lowercases and trims an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrNameRequired
	}
	if n := utf8.RuneCountInString(trimmed); n < 2 || n > 50 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	seen := make(map[Role]struct{}, len(roles))
	normalized := make([]Role, 0, len(roles))
	for _, role := range roles {
		normalizedRole := normalizeRole(role)
		if normalizedRole == "" {
			return nil, ErrInvalidRole
		}
		if _, ok := seen[normalizedRole]; ok {
			continue
		}
		seen[normalizedRole] = struct{}{}
		normalized = append(normalized, normalizedRole)
	}
	return normalized, nil
}

func normalizeRole(role Role) Role {
	switch strings.ToLower(strings.TrimSpace(string(role))) {
	case "user":
		return RoleUser
	case "admin":
		return RoleAdmin
	default:
		return ""
	}
}
