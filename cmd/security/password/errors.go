package password

import "errors"

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	// ErrWeakPassword is returned when the password lacks a letter or a digit,
	// or contains characters outside the allowed set.
	ErrWeakPassword = errors.New("weak password")
	ErrInvalidHash  = errors.New("invalid password hash")
)
