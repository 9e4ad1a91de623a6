// Package validate holds the client-side credential pre-filters. They are
// deliberately conservative: the backend stays authoritative and may reject
// input these functions accept.
package validate

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 8

// CodeLength is the number of digits in an emailed 2FA code or a TOTP code.
const CodeLength = 6

var (
	ErrEmptyEmail      = errors.New("email is required")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrEmptyPassword   = errors.New("password is required")
	ErrShortPassword   = errors.New("password must be at least 8 characters")
	ErrWeakPassword    = errors.New("password must be at least 8 characters and include an uppercase letter, a lowercase letter, a number and a symbol")
	ErrPasswordMatch   = errors.New("passwords do not match")
	ErrInvalidCode     = errors.New("enter the 6-digit code")
	ErrEmptyTempToken  = errors.New("temporary token is required")
	ErrEmptyFullName   = errors.New("full name is required")
	ErrFullNameTooLong = errors.New("full name is too long (max 100)")
)

// IsStrongPassword reports whether s is at least eight characters long and
// contains an uppercase letter, a lowercase letter, a digit and a symbol.
// Anything outside A-Z, a-z and 0-9 counts as a symbol.
func IsStrongPassword(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}

	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// IsPlausibleEmail reports whether s has exactly one "@", a non-empty local
// part, and a domain part containing at least one ".".
func IsPlausibleEmail(s string) bool {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" {
		return false
	}
	if strings.Contains(domain, "@") {
		return false
	}
	if strings.ContainsFunc(s, unicode.IsSpace) {
		return false
	}
	return strings.Contains(domain, ".")
}

// IsSixDigitCode reports whether s is exactly six ASCII digits.
func IsSixDigitCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Email returns the error a login or registration form shows for s.
func Email(s string) error {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ErrEmptyEmail
	case !IsPlausibleEmail(s):
		return ErrInvalidEmail
	}
	return nil
}

// LoginPassword only checks presence and length; strength is enforced at
// registration.
func LoginPassword(s string) error {
	switch {
	case s == "":
		return ErrEmptyPassword
	case utf8.RuneCountInString(s) < MinPasswordLength:
		return ErrShortPassword
	}
	return nil
}

// Password checks s against the registration strength rule.
func Password(s string) error {
	switch {
	case s == "":
		return ErrEmptyPassword
	case !IsStrongPassword(s):
		return ErrWeakPassword
	}
	return nil
}

// Code checks a 2FA or TOTP code.
func Code(s string) error {
	if !IsSixDigitCode(strings.TrimSpace(s)) {
		return ErrInvalidCode
	}
	return nil
}

// RegisterInput is the subset of the registration form the validator
// inspects.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// Registration checks every field of a registration form. It returns a map
// of field name to message, or nil if the form passes.
func Registration(in RegisterInput) map[string]string {
	errs := make(map[string]string)

	if err := Email(in.Email); err != nil {
		errs["email"] = err.Error()
	}
	if err := Password(in.Password); err != nil {
		errs["password"] = err.Error()
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		errs["confirm_password"] = ErrPasswordMatch.Error()
	}

	name := strings.TrimSpace(in.FullName)
	switch {
	case name == "":
		errs["full_name"] = ErrEmptyFullName.Error()
	case utf8.RuneCountInString(name) > 100:
		errs["full_name"] = ErrFullNameTooLong.Error()
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
