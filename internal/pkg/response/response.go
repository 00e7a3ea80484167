// internal/pkg/response/response.go
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every JSON response. Rejections from the campaign
// engine also carry a machine-readable FailureReason.
type Envelope struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

// Reason is any string-backed rejection code.
type Reason interface {
	~string
}

func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error aborts the handler chain with a failure envelope. The cause is only
// echoed back for client errors.
func Error(c *gin.Context, status int, message string, err error) {
	body := Envelope{Message: message}
	if err != nil && status < http.StatusInternalServerError {
		body.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// Reject aborts with a typed failure reason. data carries whatever the caller
// needs to recover, e.g. the user's progress after a refused scan.
func Reject[R Reason](c *gin.Context, status int, reason R, message string, data interface{}) {
	c.AbortWithStatusJSON(status, Envelope{
		Message:       message,
		Data:          data,
		FailureReason: string(reason),
	})
}

func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, message, nil)
}

// Internal hides the cause; log it before calling.
func Internal(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message, nil)
}
