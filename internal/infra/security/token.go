package security

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

var ErrSecretRequired = errors.New("token: signing secret is required")

type tokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 access tokens. The session id travels as "jti" and
// the user id as "sub".
type JWTIssuer struct {
	secret []byte
	issuer string
}

func NewJWTIssuer(secret, issuer string) (*JWTIssuer, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	return &JWTIssuer{secret: []byte(secret), issuer: issuer}, nil
}

func (i *JWTIssuer) Issue(claims domainauth.Claims) (string, error) {
	roles := make([]string, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, string(role))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        string(claims.SessionID),
			Subject:   string(claims.UserID),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (i *JWTIssuer) Verify(raw string) (domainauth.Claims, error) {
	if raw == "" {
		return domainauth.Claims{}, domainauth.ErrTokenRequired
	}
	var parsed tokenClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, &parsed, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return domainauth.Claims{}, domainauth.ErrSessionExpired
		}
		return domainauth.Claims{}, domainauth.ErrTokenInvalid
	}
	if i.issuer != "" && parsed.Issuer != i.issuer {
		return domainauth.Claims{}, domainauth.ErrTokenInvalid
	}
	if parsed.ID == "" || parsed.Subject == "" {
		return domainauth.Claims{}, domainauth.ErrTokenInvalid
	}
	out := domainauth.Claims{
		SessionID: domainauth.SessionID(parsed.ID),
		UserID:    domainuser.ID(parsed.Subject),
	}
	for _, role := range parsed.Roles {
		out.Roles = append(out.Roles, domainuser.Role(role))
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Time
	}
	return out, nil
}

var _ domainauth.TokenIssuer = (*JWTIssuer)(nil)
