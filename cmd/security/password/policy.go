package password

import "unicode/utf8"

// Validate checks the password against the configured Policy.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			if c.Policy.AlphanumericOnly {
				return ErrWeakPassword
			}
		}
	}

	if c.Policy.RequireLetter && !letter {
		return ErrWeakPassword
	}
	if c.Policy.RequireDigit && !digit {
		return ErrWeakPassword
	}
	return nil
}

// Acceptable reports whether password passes the default policy.
func Acceptable(password string) bool {
	return DefaultConfig().Validate(password) == nil
}
