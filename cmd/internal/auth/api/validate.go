package authapi

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"authgate/cmd/security/password"
)

const (
	msgEmailRequired    = "Email is required"
	msgEmailInvalid     = "Email is invalid"
	msgPasswordRequired = "Password is required"
	msgPasswordRule     = "Password must contain at least 8 characters, including a number"
	msgPhoneRequired    = "Phone Number is required"
	msgPhoneInvalid     = "Phone Number is invalid"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// emailError returns the field message for email, or "".
func emailError(email string) string {
	switch {
	case strings.TrimSpace(email) == "":
		return msgEmailRequired
	case validatorInstance().Var(strings.TrimSpace(email), "email") != nil:
		return msgEmailInvalid
	default:
		return ""
	}
}

// phoneError returns the field message for an E.164 phone number, or "".
func phoneError(phone string) string {
	switch {
	case strings.TrimSpace(phone) == "":
		return msgPhoneRequired
	case validatorInstance().Var(strings.TrimSpace(phone), "e164") != nil:
		return msgPhoneInvalid
	default:
		return ""
	}
}

// passwordError checks a password. The strength rule applies only to new passwords.
func passwordError(pw string, isNew bool, required string) string {
	switch {
	case pw == "":
		return required
	case isNew && !password.Acceptable(pw):
		return msgPasswordRule
	default:
		return ""
	}
}
