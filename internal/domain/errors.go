package domain

import "errors"

// Error categories. Concrete errors wrap one of these so callers can map
// them with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrPolicyViolation = errors.New("message not sent due to policy")
	ErrNotFound        = errors.New("not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrStorage         = errors.New("storage error")
	ErrConflict        = errors.New("conflict")
)
