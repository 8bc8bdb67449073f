package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrUnauthenticated is returned for a missing, invalid, expired or revoked token.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidUsername is returned when registering a blank username.
	ErrInvalidUsername = errors.New("username is required")
	// ErrWeakPassword is returned for a password outside the length limits.
	ErrWeakPassword = errors.New("password must be 8-72 characters")
)
