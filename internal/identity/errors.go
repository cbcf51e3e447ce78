package identity

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidRole       = errors.New("invalid role")
	ErrPrincipalExists   = errors.New("principal already exists")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrInvalidCredential = errors.New("invalid credential")
	// admin principals are bootstrapped by configuration, not self-registered
	ErrAdminNotAllowed = errors.New("admin role not available to this principal")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)
