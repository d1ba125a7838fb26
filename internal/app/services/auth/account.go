package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	domainlistings "zedflip/internal/domain/listings"
	domainuser "zedflip/internal/domain/user"
)

const (
	TemplateVerifyEmail = "verify_email"
	TemplateWelcome     = "welcome"

	DefaultVerificationTTL = 10 * time.Minute
)

var (
	ErrCurrentPasswordInvalid  = errors.New("auth: current password is incorrect")
	ErrVerificationUndelivered = errors.New("auth: failed to send verification email")
)

// VerificationData is rendered into the verification email.
type VerificationData struct {
	Name      string
	Code      string
	ExpiresAt time.Time
}

type WelcomeData struct {
	Name string
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	Name  *string
	Phone *string
	City  *string
}

// VerifyEmail confirms the address behind email with the code that was sent
// to it. Unknown addresses look like a wrong code.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*domainuser.User, error) {
	if s.Users == nil {
		return nil, errors.New("auth: user repository required")
	}
	user, err := s.Users.ByEmail(ctx, domainuser.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, domainuser.ErrVerificationInvalid
		}
		return nil, err
	}
	if err := user.VerifyEmail(code, s.now()); err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "email verified", "user_id", user.ID)
	if s.Email != nil {
		if err := s.Email.Send(ctx, user.Email, TemplateWelcome, WelcomeData{Name: user.Name}); err != nil {
			s.logger().WarnContext(ctx, "welcome email failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// ResendVerification replaces the pending code and mails the new one.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if s.Users == nil {
		return errors.New("auth: user repository required")
	}
	email = domainuser.NormalizeEmail(email)
	if email == "" {
		return domainuser.ErrEmailRequired
	}
	user, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.newVerification(user)
	if err != nil {
		return err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return err
	}
	if err := s.sendVerification(ctx, user, code); err != nil {
		s.logger().WarnContext(ctx, "verification email failed", "user_id", user.ID, "error", err)
		return ErrVerificationUndelivered
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
// Existing sessions stay valid.
func (s *Service) ChangePassword(ctx context.Context, id domainuser.ID, current, next string) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	user, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Passwords.Compare(user.PasswordHash, current); err != nil {
		return ErrCurrentPasswordInvalid
	}
	hash, err := s.Passwords.Hash(next)
	if err != nil {
		return err
	}
	if err := user.SetPasswordHash(hash, s.now()); err != nil {
		return err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return err
	}
	s.logger().InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, id domainuser.ID, update ProfileUpdate) (*domainuser.User, error) {
	if s.Users == nil {
		return nil, errors.New("auth: user repository required")
	}
	user, err := s.Users.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	name, phone, city := user.Name, user.Phone, user.City
	if update.Name != nil {
		name = *update.Name
	}
	if update.Phone != nil {
		phone = *update.Phone
	}
	if update.City != nil {
		city = strings.TrimSpace(*update.City)
		if city != "" {
			canonical, ok := domainlistings.CanonicalCity(city)
			if !ok {
				return nil, domainlistings.ErrCityInvalid
			}
			city = canonical
		}
	}
	if err := user.UpdateProfile(name, phone, city, s.now()); err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) newVerification(user *domainuser.User) (string, error) {
	generate := s.Codes
	if generate == nil {
		generate = randomCode
	}
	code, err := generate()
	if err != nil {
		return "", err
	}
	now := s.now()
	if err := user.IssueVerification(code, now.Add(s.verificationTTL()), now); err != nil {
		return "", err
	}
	return code, nil
}

func (s *Service) sendVerification(ctx context.Context, user *domainuser.User, code string) error {
	if s.Email == nil {
		return nil
	}
	return s.Email.Send(ctx, user.Email, TemplateVerifyEmail, VerificationData{
		Name:      user.Name,
		Code:      code,
		ExpiresAt: user.VerificationExpires,
	})
}

func (s *Service) verificationTTL() time.Duration {
	if s.VerificationTTL > 0 {
		return s.VerificationTTL
	}
	return DefaultVerificationTTL
}

// randomCode returns six decimal digits.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
