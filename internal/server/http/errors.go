package http

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/gin-gonic/gin"
)

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrQuotaExhausted):
		return http.StatusForbidden
	case errors.Is(err, common.ErrUnknownRelay),
		errors.Is(err, common.ErrUnknownSubjectKey),
		errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrPartialProvisioning):
		return http.StatusInternalServerError
	case errors.Is(err, common.ErrDuplicateRelay):
		return http.StatusConflict
	case errors.Is(err, common.ErrCollisionRetryExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrRemoteStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed",
			"path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
