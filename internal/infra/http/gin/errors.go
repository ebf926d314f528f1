package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/apperr"
)

// respondError writes the JSON error body for a failed command or query.
// Internal failures are logged and their cause is not echoed to the client.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(c, err)
	body := gin.H{"error": http.StatusText(status)}
	var appErr *apperr.Error
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		body["error"] = appErr.Message()
		body["code"] = string(appErr.Kind)
		if appErr.Retryable {
			body["retryable"] = true
		}
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(c *gin.Context, err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		if _, ok := currentPrincipal(c); !ok {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict, apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindNotOnboarded:
		return http.StatusUnprocessableEntity
	case apperr.KindExternal:
		if apperr.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.KindValidation)})
}
