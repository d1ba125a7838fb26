package security

import (
	"errors"
	"testing"
	"time"

	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

func TestJWTRoundTrip(t *testing.T) {
	issuer, err := NewJWTIssuer("test-secret", "zedflip")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	token, err := issuer.Issue(domainauth.Claims{
		SessionID: "jti-1",
		UserID:    "user-1",
		Roles:     []domainuser.Role{domainuser.RoleUser, domainuser.RoleAdmin},
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SessionID != "jti-1" || claims.UserID != "user-1" || len(claims.Roles) != 2 {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %v", claims.ExpiresAt)
	}
}

func TestJWTRejections(t *testing.T) {
	issuer, _ := NewJWTIssuer("test-secret", "zedflip")
	other, _ := NewJWTIssuer("another-secret", "zedflip")
	now := time.Now().UTC()

	foreign, err := other.Issue(domainauth.Claims{SessionID: "s", UserID: "u", IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, err := issuer.Issue(domainauth.Claims{SessionID: "s", UserID: "u", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", domainauth.ErrTokenRequired},
		{"garbage", "not.a.jwt", domainauth.ErrTokenInvalid},
		{"wrong secret", foreign, domainauth.ErrTokenInvalid},
		{"expired", expired, domainauth.ErrSessionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := issuer.Verify(tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatal("mismatch must fail")
	}
}
