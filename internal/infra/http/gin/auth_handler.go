package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"zedflip/internal/app/dto"
	authsvc "zedflip/internal/app/services/auth"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
	VerifyEmail(c *gin.Context)
	ResendVerification(c *gin.Context)
	ChangePassword(c *gin.Context)
	UpdateProfile(c *gin.Context)
}

type AuthHandler struct {
	Service *authsvc.Service
	Logger  *slog.Logger
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	City     string `json:"city"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// profileRequest leaves absent fields untouched.
type profileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	City  *string `json:"city"`
}

func (h AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	result, err := h.Service.Register(c.Request.Context(), authsvc.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    strings.TrimSpace(req.Phone),
		City:     req.City,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OKWithMessage("Registration successful",
		dto.NewAuthResponse(result.User, result.Token, result.ExpiresAt)))
}

func (h AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	result, err := h.Service.Login(c.Request.Context(), authsvc.LoginParams{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.OKWithMessage("Login successful",
		dto.NewAuthResponse(result.User, result.Token, result.ExpiresAt)))
}

func (h AuthHandler) Logout(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if err := h.Service.Logout(c.Request.Context(), token); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.Done("Logged out"))
}

func (h AuthHandler) Me(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, dto.MapUserProfile(principal.User))
}

func (h AuthHandler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	user, err := h.Service.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.OKWithMessage("Email verified successfully", dto.MapUserProfile(user)))
}

func (h AuthHandler) ResendVerification(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	if err := h.Service.ResendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.Done("Verification code sent"))
}

func (h AuthHandler) ChangePassword(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	if err := h.Service.ChangePassword(c.Request.Context(), principal.UserID(), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.Done("Password updated"))
}

func (h AuthHandler) UpdateProfile(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	user, err := h.Service.UpdateProfile(c.Request.Context(), principal.UserID(), authsvc.ProfileUpdate{
		Name:  req.Name,
		Phone: req.Phone,
		City:  req.City,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.OKWithMessage("Profile updated", dto.MapUserProfile(user)))
}

var _ AuthHTTP = AuthHandler{}
