// internal/handlers/qrcampaign/errors.go
package qrcampaign

import (
	"errors"
	"net/http"

	domain "qrloop-service/internal/domain/qrcampaign"
	xerrors "qrloop-service/internal/pkg/errors"
	"qrloop-service/internal/pkg/response"
	service "qrloop-service/internal/service/qrcampaign"

	"github.com/gin-gonic/gin"
)

var failureStatus = map[domain.FailureReason]int{
	domain.FailureNotFound:            http.StatusNotFound,
	domain.FailureNotRecurring:        http.StatusUnprocessableEntity,
	domain.FailureExpired:             http.StatusGone,
	domain.FailureAlreadyUsed:         http.StatusConflict,
	domain.FailureWrongUser:           http.StatusForbidden,
	domain.FailureCampaignCompleted:   http.StatusConflict,
	domain.FailureGenerationExhausted: http.StatusServiceUnavailable,
}

// StatusFor maps a rejection to the HTTP status returned to callers.
func StatusFor(reason domain.FailureReason) int {
	if status, ok := failureStatus[reason]; ok {
		return status
	}
	return http.StatusBadRequest
}

func writeResult(c *gin.Context, result *domain.ValidationResult) {
	if result.Accepted {
		response.Success(c, http.StatusOK, result.Message, result)
		return
	}
	response.Reject(c, StatusFor(result.FailureReason), result.FailureReason, result.Message, result)
}

func writeError(c *gin.Context, err error) {
	var reason domain.FailureReason
	switch {
	case errors.Is(err, service.ErrNotRecurring):
		reason = domain.FailureNotRecurring
	case errors.Is(err, service.ErrCampaignCompleted):
		reason = domain.FailureCampaignCompleted
	case errors.Is(err, service.ErrGenerationExhausted):
		reason = domain.FailureGenerationExhausted
	}
	if reason != "" {
		response.Reject(c, StatusFor(reason), reason, reason.Message(), nil)
		return
	}

	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "tool not found")
	case errors.Is(err, xerrors.ErrForbidden):
		response.Forbidden(c, "you do not have access to this tool")
	case errors.Is(err, xerrors.ErrInvalidInput):
		response.ValidationError(c, "invalid request", err)
	default:
		response.Internal(c, "internal server error")
	}
}
