package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	gin "github.com/gin-gonic/gin"

	"zedflip/internal/app/dto"
	adminapp "zedflip/internal/app/handlers/admin"
	listingapp "zedflip/internal/app/handlers/listings"
	authsvc "zedflip/internal/app/services/auth"
	domainauth "zedflip/internal/domain/auth"
	domainchat "zedflip/internal/domain/chat"
	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
	"zedflip/internal/infra/obs"
)

const internalErrorMessage = "Internal server error"

var errInvalidBody = errors.New("request: invalid request body")

var (
	notFoundErrors = []error{
		domainchat.ErrConversationNotFound,
		domainlistings.ErrListingNotFound,
		domainuser.ErrNotFound,
	}
	validationErrors = []error{
		errInvalidBody,
		domainchat.ErrIDRequired,
		domainchat.ErrListingRequired,
		domainchat.ErrContentRequired,
		domainchat.ErrContentTooLong,
		domainlistings.ErrIDRequired,
		domainlistings.ErrTitleLength,
		domainlistings.ErrDescriptionLength,
		domainlistings.ErrPriceInvalid,
		domainlistings.ErrCategoryRequired,
		domainlistings.ErrConditionInvalid,
		domainlistings.ErrCityInvalid,
		domainlistings.ErrPhoneInvalid,
		domainlistings.ErrTooManyImages,
		domainlistings.ErrImageURLRequired,
		listingapp.ErrImageRequired,
		listingapp.ErrImageType,
		domainuser.ErrEmailRequired,
		domainuser.ErrEmailInvalid,
		domainuser.ErrNameRequired,
		domainuser.ErrNameLength,
		domainuser.ErrPhoneInvalid,
		domainuser.ErrVerificationInvalid,
		domainlistings.ErrStatusInvalid,
		authsvc.ErrPasswordTooShort,
		money.ErrInvalidCurrency,
		money.ErrNegativeAmount,
	}
	invalidOperationErrors = []error{
		domainchat.ErrSelfConversation,
		domainchat.ErrParticipantsInvalid,
		domainlistings.ErrInvalidTransition,
		adminapp.ErrSelfModeration,
		domainuser.ErrAlreadyVerified,
	}
	conflictErrors = []error{
		domainuser.ErrEmailAlreadyUsed,
		domainchat.ErrConversationExists,
	}
	unauthorizedErrors = []error{
		authsvc.ErrInvalidCredentials,
		authsvc.ErrCurrentPasswordInvalid,
		domainauth.ErrTokenRequired,
		domainauth.ErrTokenInvalid,
		domainauth.ErrSessionNotFound,
		domainauth.ErrSessionExpired,
	}
	forbiddenErrors = []error{
		authsvc.ErrUserBanned,
		authsvc.ErrForbidden,
		domainlistings.ErrNotSeller,
	}
)

// statusFor classifies err. Anything unrecognised is a dependency failure.
func statusFor(err error) int {
	switch {
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound
	case matchesAny(err, validationErrors), matchesAny(err, invalidOperationErrors):
		return http.StatusBadRequest
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, unauthorizedErrors):
		return http.StatusUnauthorized
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden
	case errors.Is(err, listingapp.ErrImageStoreUnavailable), errors.Is(err, authsvc.ErrVerificationUndelivered):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError writes the failure envelope for err. Server errors are
// logged and replaced by a generic message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(c.Request.Context(), "request failed",
			"error", err,
			"path", c.FullPath(),
			"request_id", obs.RequestIDFromContext(c.Request.Context()))
		message := internalErrorMessage
		if status == http.StatusServiceUnavailable {
			message = publicMessage(err)
		}
		c.AbortWithStatusJSON(status, dto.Failure(message))
		return
	}
	c.AbortWithStatusJSON(status, dto.Failure(publicMessage(err)))
}

func respondStatus(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.Failure(message))
}

func respondOK[T any](c *gin.Context, status int, data T) {
	c.JSON(status, dto.OK(data))
}

// publicMessage turns "chat: conversation not found" into "Conversation not found".
func publicMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 && !strings.ContainsRune(msg[:idx], ' ') {
		msg = msg[idx+2:]
	}
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
