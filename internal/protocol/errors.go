package protocol

import "fmt"

// ErrorCode identifies why a connection's request was refused
type ErrorCode string

const (
	ErrCodeInvalidMessage   ErrorCode = "INVALID_MESSAGE"
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"
	ErrCodeNotAttached      ErrorCode = "NOT_ATTACHED"
	ErrCodeSessionReplaced  ErrorCode = "SESSION_REPLACED"
	ErrCodeLoadFailed       ErrorCode = "LOAD_FAILED"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// Error is sent to a single connection in an "error" event
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func InvalidMessage(reason string) *Error {
	return NewError(ErrCodeInvalidMessage, reason)
}

func InvalidOperation(op OpType, reason string) *Error {
	return NewError(ErrCodeInvalidOperation, fmt.Sprintf("invalid %s operation: %s", op, reason)).
		WithDetail("type", string(op))
}

func NotAttached(workspaceID string) *Error {
	return NewError(ErrCodeNotAttached, "connection is not attached to the workspace").
		WithDetail("workspaceId", workspaceID)
}

func SessionReplaced(identity string) *Error {
	return NewError(ErrCodeSessionReplaced,
		fmt.Sprintf("a newer connection for %s joined the workspace", identity)).
		WithDetail("username", identity)
}

func LoadFailed(workspaceID string) *Error {
	return NewError(ErrCodeLoadFailed, "workspace could not be loaded, try again").
		WithDetail("workspaceId", workspaceID)
}

func RateLimited() *Error {
	return NewError(ErrCodeRateLimited, "too many messages")
}
