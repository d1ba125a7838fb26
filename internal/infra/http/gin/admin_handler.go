package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"zedflip/internal/app/commands"
	"zedflip/internal/app/dto"
	adminapp "zedflip/internal/app/handlers/admin"
	"zedflip/internal/app/queries"
)

// AdminHandler serves the moderation API. The route group already requires
// the admin role.
type AdminHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h AdminHandler) Stats(c *gin.Context) {
	result, err := queries.Ask[adminapp.StatsQuery, dto.AdminStats](c.Request.Context(), h.Queries, adminapp.StatsQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h AdminHandler) ListUsers(c *gin.Context) {
	query := adminapp.ListUsersQuery{
		Search: c.Query("search"),
		Page:   parseIntWithDefault(c.Query("page"), 1),
		Limit:  parseIntWithDefault(c.Query("limit"), 20),
	}
	if raw := c.Query("banned"); raw != "" {
		if banned, err := strconv.ParseBool(raw); err == nil {
			query.Banned = &banned
		}
	}
	result, err := queries.Ask[adminapp.ListUsersQuery, dto.AdminUserList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h AdminHandler) ListListings(c *gin.Context) {
	query := adminapp.ListListingsQuery{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Page:   parseIntWithDefault(c.Query("page"), 1),
		Limit:  parseIntWithDefault(c.Query("limit"), 20),
	}
	result, err := queries.Ask[adminapp.ListListingsQuery, dto.ListingPage](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h AdminHandler) ToggleBan(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := adminapp.ToggleBanCommand{AdminID: string(principal.UserID()), UserID: c.Param("id")}
	result, err := commands.Dispatch[adminapp.ToggleBanCommand, dto.BanResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	message := "User unbanned"
	if result.IsBanned {
		message = "User banned"
	}
	c.JSON(http.StatusOK, dto.OKWithMessage(message, result))
}

func (h AdminHandler) ToggleFeatured(c *gin.Context) {
	cmd := adminapp.ToggleFeaturedCommand{ListingID: c.Param("id")}
	result, err := commands.Dispatch[adminapp.ToggleFeaturedCommand, dto.FeatureResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h AdminHandler) ListConversations(c *gin.Context) {
	query := adminapp.ListConversationsQuery{
		ActiveOnly: c.Query("active") == "true",
		Page:       parseIntWithDefault(c.Query("page"), 1),
		Limit:      parseIntWithDefault(c.Query("limit"), 20),
	}
	result, err := queries.Ask[adminapp.ListConversationsQuery, dto.AdminConversationList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h AdminHandler) SetConversationActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		respondError(c, h.Logger, errInvalidBody)
		return
	}
	cmd := adminapp.SetConversationActiveCommand{ConversationID: c.Param("id"), Active: *req.IsActive}
	result, err := commands.Dispatch[adminapp.SetConversationActiveCommand, dto.ConversationActivation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

var _ AdminHTTP = AdminHandler{}
