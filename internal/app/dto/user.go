package dto

import (
	"time"

	domainuser "zedflip/internal/domain/user"
)

type UserProfile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	City            string    `json:"city,omitempty"`
	Roles           []string  `json:"roles"`
	IsAdmin         bool      `json:"isAdmin"`
	IsBanned        bool      `json:"isBanned"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	LastActiveAt    time.Time `json:"lastActiveAt"`
}

// PublicUser is what other users may see about an account.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SellerProfile is the public page of an account with its newest active listings.
type SellerProfile struct {
	User     PublicUser `json:"user"`
	Listings []Listing  `json:"listings"`
}

type AuthResponse struct {
	User      UserProfile `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func MapUserProfile(user *domainuser.User) UserProfile {
	if user == nil {
		return UserProfile{}
	}
	roles := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		roles = append(roles, string(role))
	}
	return UserProfile{
		ID:              string(user.ID),
		Email:           user.Email,
		Name:            user.Name,
		Phone:           user.Phone,
		City:            user.City,
		Roles:           roles,
		IsAdmin:         user.IsAdmin(),
		IsBanned:        user.Banned,
		IsEmailVerified: user.EmailVerified,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
		LastActiveAt:    user.LastActiveAt,
	}
}

func MapPublicUser(user *domainuser.User) *PublicUser {
	if user == nil {
		return nil
	}
	return &PublicUser{
		ID:        string(user.ID),
		Name:      user.Name,
		City:      user.City,
		CreatedAt: user.CreatedAt,
	}
}

func NewAuthResponse(user *domainuser.User, token string, expiresAt time.Time) AuthResponse {
	return AuthResponse{
		User:      MapUserProfile(user),
		Token:     token,
		ExpiresAt: expiresAt,
	}
}
