package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	tagIdentifier = "identifier"
	tagCode       = "otpcode"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s\v\p{Z}@]+@[^\s\v\p{Z}@]+\.[^\s\v\p{Z}@]+$`)
	phonePattern = regexp.MustCompile(`^[+]?[- 0-9]{6,15}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// Validator checks the shape of login identifiers and submitted codes.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the identifier and code rules on a fresh
// go-playground validator.
func NewValidator() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation(tagIdentifier, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return emailPattern.MatchString(s) || phonePattern.MatchString(s)
	}); err != nil {
		return nil, fmt.Errorf("register %s rule: %w", tagIdentifier, err)
	}

	if err := v.RegisterValidation(tagCode, func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register %s rule: %w", tagCode, err)
	}

	return &Validator{validate: v}, nil
}

// MustValidator is NewValidator for wiring code where a failure is a programming error.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Identifier reports whether raw, once trimmed, is an email address or a phone number.
func (v *Validator) Identifier(raw string) bool {
	return v.validate.Var(strings.TrimSpace(raw), "required,"+tagIdentifier) == nil
}

// Code reports whether raw, once trimmed, is exactly six digits.
func (v *Validator) Code(raw string) bool {
	return v.validate.Var(strings.TrimSpace(raw), "required,"+tagCode) == nil
}

// Normalize turns an identifier into its storage key.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
