package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/werchat/werchat/internal/core"
)

// ErrorResponse is the standard error body for API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

// respondCoreError maps a core error to an HTTP status and writes it.
func respondCoreError(c *gin.Context, err error) {
	var ce *core.CoreError
	if !errors.As(err, &ce) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusBadRequest
	switch ce.Code {
	case core.ErrCodeNotFound, core.ErrCodeNoChannel:
		status = http.StatusNotFound
	case core.ErrCodePermissionDenied, core.ErrCodeBanned, core.ErrCodeMuted,
		core.ErrCodeNotMember, core.ErrCodeIgnored:
		status = http.StatusForbidden
	case core.ErrCodeAlreadyExists:
		status = http.StatusConflict
	case core.ErrCodeOnCooldown:
		status = http.StatusTooManyRequests
	case core.ErrCodeBlocked, core.ErrCodeWrongWorld, core.ErrCodeInvariantViolation:
		status = http.StatusUnprocessableEntity
	case core.ErrCodePersistence:
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code, Seconds: ce.Seconds})
}
