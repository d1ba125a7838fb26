package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	authsvc "zedflip/internal/app/services/auth"
	domainauth "zedflip/internal/domain/auth"
	domainuser "zedflip/internal/domain/user"
)

const principalContextKey = "zedflip.principal"

// Authenticator resolves a bearer token into the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*authsvc.Principal, error)
}

// AuthMiddleware attaches the principal when a valid bearer token is
// present. Routes decide on their own whether one is required.
type AuthMiddleware struct {
	Service Authenticator
	Logger  *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Service == nil {
		c.Next()
		return
	}
	resolved, err := m.Service.Authenticate(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, domainauth.ErrSessionNotFound) && m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Set(principalContextKey+".error", err)
		c.Next()
		return
	}
	c.Set(principalContextKey, resolved)
	c.Next()
}

func currentPrincipal(c *gin.Context) (*authsvc.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return nil, false
	}
	p, ok := val.(*authsvc.Principal)
	return p, ok && p != nil
}

// requireAuth aborts with 401 unless a principal is attached. A banned
// account gets 403.
func requireAuth(c *gin.Context) (*authsvc.Principal, bool) {
	p, ok := currentPrincipal(c)
	if ok {
		return p, true
	}
	if val, exists := c.Get(principalContextKey + ".error"); exists {
		if err, isErr := val.(error); isErr && errors.Is(err, authsvc.ErrUserBanned) {
			respondStatus(c, http.StatusForbidden, "Account is banned")
			return nil, false
		}
	}
	respondStatus(c, http.StatusUnauthorized, "Not authorized")
	return nil, false
}

func requireRole(c *gin.Context, role domainuser.Role) (*authsvc.Principal, bool) {
	p, ok := requireAuth(c)
	if !ok {
		return nil, false
	}
	if role != "" && !p.User.HasRole(role) {
		respondStatus(c, http.StatusForbidden, "Insufficient permissions")
		return nil, false
	}
	return p, true
}

// RequireAdmin guards a route group.
func RequireAdmin(c *gin.Context) {
	if _, ok := requireRole(c, domainuser.RoleAdmin); !ok {
		return
	}
	c.Next()
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
