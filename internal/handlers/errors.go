package handlers

import (
	"net/http"

	apperrors "github.com/attachtrack/attachtrack-api/pkg/errors"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// kindStatus maps every business error kind to its HTTP status
var kindStatus = map[apperrors.Kind]int{
	apperrors.KindUnauthenticated:          http.StatusUnauthorized,
	apperrors.KindForbidden:                http.StatusForbidden,
	apperrors.KindNotFound:                 http.StatusNotFound,
	apperrors.KindIllegalTransition:        http.StatusConflict,
	apperrors.KindNoCapacity:               http.StatusConflict,
	apperrors.KindConflict:                 http.StatusConflict,
	apperrors.KindActiveAttachmentExists:   http.StatusConflict,
	apperrors.KindCapacityBelowReserved:    http.StatusConflict,
	apperrors.KindDuplicateLiveApplication: http.StatusBadRequest,
	apperrors.KindPositionInactive:         http.StatusBadRequest,
	apperrors.KindDuplicateEmail:           http.StatusBadRequest,
	apperrors.KindInvalidRole:              http.StatusBadRequest,
	apperrors.KindInvalidInput:             http.StatusBadRequest,
}

// attachError attaches err to the gin context so the observability middleware
// can include the reason in the request log.
func attachError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err) //nolint:errcheck
	}
}

// respondError sends an error JSON response and attaches the error to the gin context
func respondError(c *gin.Context, status int, message string, kind apperrors.Kind, err error) {
	attachError(c, err)
	c.JSON(status, gin.H{"error": message, "kind": kind})
}

// respondServiceError translates a service error into its status and kind.
// Internal failures are logged and never leak their cause.
func respondServiceError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))
		respondError(c, http.StatusInternalServerError, "Internal server error", apperrors.KindInternal, err)
		return
	}

	message := err.Error()
	if kind == apperrors.KindUnauthenticated {
		message = unauthenticatedMessage(err)
	}
	respondError(c, status, message, kind, err)
}

func unauthenticatedMessage(err error) string {
	if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
		return "Invalid credentials"
	}
	return "Unauthorized"
}
