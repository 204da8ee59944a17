package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotFound           = "not_found"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeInvariantViolation = "invariant_violation"
	ErrCodeNotMember          = "not_member"
	ErrCodeBanned             = "banned"
	ErrCodeMuted              = "muted"
	ErrCodeOnCooldown         = "on_cooldown"
	ErrCodeBlocked            = "blocked"
	ErrCodeWrongWorld         = "wrong_world"
	ErrCodeNoChannel          = "no_channel_available"
	ErrCodeInvalidInput       = "invalid_input"
	ErrCodePersistence        = "persistence_failure"
	ErrCodeIgnored            = "ignored"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrAlreadyExists   = errors.New("channel already exists")
	ErrLastChannel     = errors.New("cannot delete the last channel")
)

// CoreError wraps a code and human-readable message. Seconds is set only
// for on_cooldown errors and carries the remaining wait time.
type CoreError struct {
	Code    string
	Message string
	Seconds int
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
