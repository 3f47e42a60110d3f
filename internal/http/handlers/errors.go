package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, never
// on the message text. The middleware package writes "rate_limited" and
// "internal_error" itself since it cannot import this package.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeInternal         = "internal_error"

	// Server-side failures of one operation.
	ErrCodeRegisterFailed = "register_failed"
	ErrCodeLoginFailed    = "login_failed"
	ErrCodeListFailed     = "list_failed"
)
